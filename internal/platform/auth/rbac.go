package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CheckRole is the exact-match role predicate. There is no hierarchy: an
// admin token does not satisfy a patient requirement.
func CheckRole(claims *Claims, role string) error {
	if claims == nil || claims.Role != role {
		return ErrForbidden
	}
	return nil
}

// RequireRole returns middleware that lets only the exact role through.
// Mount after Guard.Middleware so the claims are on the context.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFromContext(c.Request().Context())
			if err := CheckRole(claims, role); err != nil {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required role: %s", role))
			}
			return next(c)
		}
	}
}
