package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/claims/claims/internal/config"
	"github.com/claims/claims/internal/domain/claims"
	"github.com/claims/claims/internal/domain/identity"
	"github.com/claims/claims/internal/platform/auth"
	"github.com/claims/claims/internal/platform/awsutil"
	"github.com/claims/claims/internal/platform/dynamo"
	"github.com/claims/claims/internal/platform/middleware"
	"github.com/claims/claims/internal/platform/s3store"
	"github.com/claims/claims/internal/platform/secrets"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "claims-server",
		Short: "Insurance claims intake API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedAdminCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the claims API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func seedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the admin account if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedAdmin()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	// Logger
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}

	// AWS clients
	ctx := context.Background()
	awsCfg, err := awsutil.Load(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load AWS configuration")
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Local stacks resolve buckets by path, not virtual host.
		o.UsePathStyle = cfg.AWSEndpointURL != ""
	})
	smClient := secretsmanager.NewFromConfig(awsCfg)

	// Platform
	keys := secrets.NewProvider(smClient, cfg.JWTSecretName)
	tokens := auth.NewTokenService(keys)
	guard := auth.NewGuard(tokens)

	store := dynamo.NewStore(dynamoClient, cfg.DynamoTable)
	documents := s3store.NewFromClient(s3Client, cfg.S3Bucket)

	// Domain services
	identitySvc := identity.NewService(identity.NewRepo(store), tokens, cfg.AdminEmail, cfg.AdminPassword)
	identityHandler := identity.NewHandler(identitySvc)

	claimSvc := claims.NewService(claims.NewRepo(store), documents, logger)
	claimHandler := claims.NewHandler(claimSvc)

	// Seed the admin account before accepting traffic.
	created, err := identitySvc.EnsureAdmin(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed admin account")
	}
	if created {
		logger.Info().Str("email", cfg.AdminEmail).Msg("admin account created")
	} else {
		logger.Info().Str("email", cfg.AdminEmail).Msg("admin account already present")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "claims-api",
		})
	})

	// API routes
	apiV1 := e.Group("/api/v1")
	identityHandler.RegisterRoutes(apiV1, guard)
	claimHandler.RegisterRoutes(apiV1, guard)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runSeedAdmin() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()
	awsCfg, err := awsutil.Load(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
	if err != nil {
		return fmt.Errorf("load AWS configuration: %w", err)
	}

	store := dynamo.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	keys := secrets.NewProvider(secretsmanager.NewFromConfig(awsCfg), cfg.JWTSecretName)
	svc := identity.NewService(identity.NewRepo(store), auth.NewTokenService(keys), cfg.AdminEmail, cfg.AdminPassword)

	created, err := svc.EnsureAdmin(ctx)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if created {
		logger.Info().Str("email", cfg.AdminEmail).Msg("admin account created")
	} else {
		logger.Info().Str("email", cfg.AdminEmail).Msg("admin account already present")
	}
	return nil
}

// errorHandler renders every error as {"detail": ...} so clients see one
// envelope shape regardless of which layer rejected the request.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				detail = msg
			} else {
				detail = http.StatusText(code)
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, map[string]string{"detail": detail})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
