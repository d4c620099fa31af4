package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`
	AWSRegion      string   `mapstructure:"AWS_REGION"`
	AWSEndpointURL string   `mapstructure:"AWS_ENDPOINT_URL"`
	DynamoTable    string   `mapstructure:"DYNAMODB_TABLE"`
	S3Bucket       string   `mapstructure:"S3_BUCKET"`
	JWTSecretName  string   `mapstructure:"JWT_SECRET_NAME"`
	AdminEmail     string   `mapstructure:"ADMIN_EMAIL"`
	AdminPassword  string   `mapstructure:"ADMIN_PASSWORD"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AWS_REGION", "eu-west-2")
	v.SetDefault("DYNAMODB_TABLE", "insurance-claims")
	v.SetDefault("S3_BUCKET", "insurance-claim-documents")
	v.SetDefault("JWT_SECRET_NAME", "jwt_secret")
	v.SetDefault("ADMIN_EMAIL", "admin@healthcare.com")
	v.SetDefault("ADMIN_PASSWORD", "SecureAdmin@123")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("BODY_LIMIT", "10M")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("AWS_REGION")
	v.BindEnv("AWS_ENDPOINT_URL")
	v.BindEnv("DYNAMODB_TABLE")
	v.BindEnv("S3_BUCKET")
	v.BindEnv("JWT_SECRET_NAME")
	v.BindEnv("ADMIN_EMAIL")
	v.BindEnv("ADMIN_PASSWORD")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("BODY_LIMIT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The table, bucket and
// secret name have defaults, so this mostly guards against explicitly blanked
// values and malformed ports.
func (c *Config) Validate() error {
	if c.DynamoTable == "" {
		return fmt.Errorf("DYNAMODB_TABLE must not be empty")
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET must not be empty")
	}
	if c.JWTSecretName == "" {
		return fmt.Errorf("JWT_SECRET_NAME must not be empty")
	}
	if c.AdminEmail == "" || c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must both be set")
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", port)
	}

	return nil
}
