package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

// ClaimsKey holds the validated *Claims on the request context.
const ClaimsKey contextKey = "auth_claims"

// Guard authenticates requests before they reach a handler.
type Guard struct {
	tokens *TokenService
}

func NewGuard(tokens *TokenService) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate validates a raw Authorization header value. The scheme must
// be Bearer (case-insensitive); everything else is ErrUnauthorized.
func (g *Guard) Authenticate(ctx context.Context, authorization string) (*Claims, error) {
	if authorization == "" {
		return nil, ErrUnauthorized
	}

	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrUnauthorized
	}

	return g.tokens.Validate(ctx, parts[1])
}

// Middleware authenticates every request on the group it is mounted on and
// stores the claims on the request context.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := g.Authenticate(c.Request().Context(), c.Request().Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, ErrUnauthorized) {
					c.Response().Header().Set("WWW-Authenticate", "Bearer")
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
				}
				// Signing key unavailable: an availability problem, not an
				// authentication verdict.
				return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication unavailable")
			}

			ctx := context.WithValue(c.Request().Context(), ClaimsKey, claims)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}

func UserIDFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
