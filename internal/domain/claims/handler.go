package claims

import (
	"errors"
	"io"
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

// RegisterRoutes mounts the claim endpoints. Every route needs a token; the
// admin group additionally requires the admin role.
func (h *Handler) RegisterRoutes(api *echo.Group, guard *auth.Guard) {
	mine := api.Group("/claims", guard.Middleware())
	mine.POST("", h.Create)
	mine.GET("/my", h.ListMine)
	mine.POST("/:id/document", h.UploadDocument)
	mine.POST("/:id/confirm-document", h.ConfirmDocument)

	admin := api.Group("/admin/claims", guard.Middleware(), auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListAll)
	admin.GET("/pending", h.ListPending)
	admin.GET("/status/:status", h.ListByStatus)
	admin.GET("/patient/:patient_id", h.ListByPatient)
	admin.PUT("/:id/status", h.UpdateStatus)
	admin.POST("/:id/approve", h.Approve)
	admin.POST("/:id/reject", h.Reject)
}

func caller(c echo.Context) (*auth.Claims, error) {
	claims := auth.ClaimsFromContext(c.Request().Context())
	if claims == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return claims, nil
}

func (h *Handler) Create(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.Amount.String() == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "amount is required")
	}

	cl, err := h.svc.Create(c.Request().Context(), who, in)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) ListMine(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	result, next, err := h.svc.ListMine(c.Request().Context(), who, dynamo.Page{Limit: pg.Limit, Cursor: pg.Cursor})
	if err != nil {
		if errors.Is(err, dynamo.ErrBadCursor) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(result, len(result), pg.Limit, next))
}

func (h *Handler) UploadDocument(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var body io.Reader
	var contentType string
	if file, err := c.FormFile("file"); err == nil {
		src, err := file.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
		}
		defer src.Close()
		body = src
		contentType = file.Header.Get("Content-Type")
	} else {
		// Raw body upload; the client set the content type on the request.
		body = c.Request().Body
		contentType = c.Request().Header.Get(echo.HeaderContentType)
	}

	cl, err := h.svc.UploadDocument(c.Request().Context(), who, c.Param("id"), contentType, body)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ConfirmDocument(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var in ConfirmDocumentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cl, err := h.svc.ConfirmDocument(c.Request().Context(), who, c.Param("id"), in.DocumentKey)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListAll(c echo.Context) error {
	pg := pagination.FromContext(c)

	result, next, err := h.svc.ListAll(c.Request().Context(), dynamo.Page{Limit: pg.Limit, Cursor: pg.Cursor})
	if err != nil {
		if errors.Is(err, dynamo.ErrBadCursor) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(result, len(result), pg.Limit, next))
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)

	result, next, err := h.svc.ListPending(c.Request().Context(), dynamo.Page{Limit: pg.Limit, Cursor: pg.Cursor})
	if err != nil {
		if errors.Is(err, dynamo.ErrBadCursor) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(result, len(result), pg.Limit, next))
}

func (h *Handler) ListByStatus(c echo.Context) error {
	pg := pagination.FromContext(c)

	result, next, err := h.svc.ListByStatus(c.Request().Context(), c.Param("status"), dynamo.Page{Limit: pg.Limit, Cursor: pg.Cursor})
	if err != nil {
		switch {
		case errors.Is(err, ErrBadStatus):
			return echo.NewHTTPError(http.StatusBadRequest, ErrBadStatus.Error())
		case errors.Is(err, dynamo.ErrBadCursor):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(result, len(result), pg.Limit, next))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pg := pagination.FromContext(c)

	result, next, err := h.svc.ListByPatient(c.Request().Context(), c.Param("patient_id"), dynamo.Page{Limit: pg.Limit, Cursor: pg.Cursor})
	if err != nil {
		if errors.Is(err, dynamo.ErrBadCursor) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(result, len(result), pg.Limit, next))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var in UpdateStatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cl, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), in.Status)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) Approve(c echo.Context) error {
	cl, err := h.svc.Approve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) Reject(c echo.Context) error {
	cl, err := h.svc.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

// claimError translates service failures on a single claim to HTTP status.
func claimError(err error) error {
	switch {
	case errors.Is(err, dynamo.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "claim belongs to another user")
	case errors.Is(err, ErrBadStatus):
		return echo.NewHTTPError(http.StatusBadRequest, ErrBadStatus.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
}
