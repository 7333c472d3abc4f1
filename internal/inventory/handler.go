package inventory

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"SMTS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/packages", h.List)
	r.GET("/packages/options", h.Options)
	r.GET("/packages/:id", h.Get)
	r.POST("/packages", auth.RequireCapability(auth.CapAddPackage), h.Create)
	r.PUT("/packages/:id", auth.RequireCapability(auth.CapManageInventory), h.Update)
	r.DELETE("/packages/:id", auth.RequireCapability(auth.CapManageInventory), h.Delete)
}

func (h *Handler) List(c *gin.Context) {
	q := ListQuery{
		Code:     c.Query("code"),
		Category: c.Query("category"),
		Shift:    c.Query("shift"),
		Limit:    atoiDef(c.Query("limit"), 0),
	}
	if v := c.Query("available"); v != "" {
		b, err := parseAvailable(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "available must be YES/NO or true/false"))
			return
		}
		q.Available = &b
	}
	items, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) Options(c *gin.Context) {
	res, err := h.svc.Options(c.Request.Context())
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/packages/"+strconv.FormatInt(res.ID, 10))
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req UpdatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ===== helpers =====

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "id must be a number"))
		return 0, false
	}
	return id, true
}

func parseAvailable(v string) (bool, error) {
	switch v {
	case "YES", "yes", "true", "1":
		return true, nil
	case "NO", "no", "false", "0":
		return false, nil
	}
	return false, errors.New("bad available")
}

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}

type errDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiErr(code Code, msg string) errDTO {
	var e errDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func apiErrFrom(err error) errDTO {
	var api *APIError
	if errors.As(err, &api) {
		return apiErr(api.Code, api.Message)
	}
	return apiErr(CodeInternal, "internal error")
}
