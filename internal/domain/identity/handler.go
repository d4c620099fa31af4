package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/claims/claims/internal/platform/auth"
	"github.com/claims/claims/internal/platform/dynamo"
	"github.com/claims/claims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the identity endpoints. Registration and login are
// public, the profile needs a valid token, and the user registry is admin only.
func (h *Handler) RegisterRoutes(api *echo.Group, guard *auth.Guard) {
	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)

	users := api.Group("/users", guard.Middleware())
	users.GET("/me", h.Me)

	admin := api.Group("/admin/users", guard.Middleware(), auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListUsers)
	admin.DELETE("/:id", h.DeleteUser)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.Email == "" || in.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrInvalidRole) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.Password == "" || (in.Email == "" && in.PatientID == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "email or patient_id and password are required")
	}

	res, err := h.svc.Login(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	u, err := h.svc.Profile(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)

	users, next, err := h.svc.ListUsers(c.Request().Context(), dynamo.Page{Limit: pg.Limit, Cursor: pg.Cursor})
	if err != nil {
		if errors.Is(err, dynamo.ErrBadCursor) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, len(users), pg.Limit, next))
}

func (h *Handler) DeleteUser(c echo.Context) error {
	if err := h.svc.DeleteUser(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.NoContent(http.StatusNoContent)
}
