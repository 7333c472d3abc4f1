package lending

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"SMTS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes は RequireAuth 済みのグループに登録する
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/borrow", h.Borrow)
	r.POST("/return/:borrowId", h.ReturnItem)
	r.POST("/verify-return/:borrowId", h.VerifyReturn)

	r.GET("/borrow-history", h.History)
	r.GET("/borrow-history/export", h.ExportHistory)
	r.GET("/borrow-records/overdue", auth.RequireCapability(auth.CapViewOverdue), h.ListOverdue)
}

func (h *Handler) Borrow(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "packageId and verifierId are required"))
		return
	}
	rec, err := h.svc.Borrow(c.Request.Context(), actor, req.PackageID, req.VerifierID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Package borrowed successfully", "record": toRecordResponse(rec)})
}

func (h *Handler) ReturnItem(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := borrowIDOrAbort(c)
	if !ok {
		return
	}
	rec, err := h.svc.ReturnItem(c.Request.Context(), id, actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Return submitted, awaiting verification", "record": toRecordResponse(rec)})
}

func (h *Handler) VerifyReturn(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := borrowIDOrAbort(c)
	if !ok {
		return
	}
	var req VerifyReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "returnedSamples is required"))
		return
	}
	rec, err := h.svc.VerifyReturn(c.Request.Context(), actor, id, *req.ReturnedSamples, req.Justification)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Return verified", "record": toRecordResponse(rec)})
}

func (h *Handler) History(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	items, err := h.svc.History(c.Request.Context(), actor, c.Query("status"), parseIntDefault(c.Query("limit"), 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) ExportHistory(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	buf := &bytes.Buffer{}
	if err := h.svc.ExportHistory(c.Request.Context(), actor, buf); err != nil {
		h.fail(c, err)
		return
	}
	name := fmt.Sprintf("borrow-history-%s.xlsx", h.svc.clock.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, XLSXContentType, buf.Bytes())
}

func (h *Handler) ListOverdue(c *gin.Context) {
	horizon := DefaultHorizon
	if v := c.Query("horizon"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "horizon must be a duration like 2h"))
			return
		}
		horizon = d
	}
	items, err := h.svc.ListOverdueOrSoonDue(c.Request.Context(), horizon)
	if err != nil {
		h.fail(c, err)
		return
	}
	now := h.svc.clock.Now()
	out := make([]DueRecordResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toDueResponse(d, now))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "horizon": horizon.String()})
}

// ---------- helpers ----------

func (h *Handler) fail(c *gin.Context, err error) {
	status := ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.svc.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, errorFromErr(err))
}

func actorOrAbort(c *gin.Context) (auth.Actor, bool) {
	a, ok := auth.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "missing identity"))
		return auth.Actor{}, false
	}
	return a, true
}

func borrowIDOrAbort(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("borrowId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "borrowId must be a number"))
		return 0, false
	}
	return id, true
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// インフラ障害の詳細は返さない
func errorFromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) && api.Code != CodeInternal {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeInternal, "internal server error")
}
