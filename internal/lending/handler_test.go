package lending

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SMTS-backend/internal/platform/auth"
)

var testSecret = []byte("lending-test-secret")

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api", auth.RequireAuth(testSecret)), f.svc)
	return r
}

func call(t *testing.T, r *gin.Engine, actor auth.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := auth.SignToken(testSecret, auth.User{ID: actor.ID, Role: actor.Role, Email: actor.Email}, time.Now(), time.Hour)
	require.NoError(t, err)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) errBody {
	t.Helper()
	var e errBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

func TestHandlerLifecycle(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := call(t, r, f.eng, http.MethodPost, "/api/borrow", fmt.Sprintf(`{"packageId":%d,"verifierId":%d}`, f.pkg, f.tech.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created struct {
		Record BorrowRecordResponse `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "In Progress", created.Record.Status)
	assert.Equal(t, 50, created.Record.ExpectedSamples)
	id := created.Record.ID

	w = call(t, r, f.eng2, http.MethodPost, "/api/borrow", fmt.Sprintf(`{"packageId":%d,"verifierId":%d}`, f.pkg, f.tech.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNAVAILABLE", decodeErr(t, w).Error.Code)

	w = call(t, r, f.eng2, http.MethodPost, fmt.Sprintf("/api/return/%d", id), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, r, f.eng, http.MethodPost, fmt.Sprintf("/api/return/%d", id), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, r, f.tech, http.MethodPost, fmt.Sprintf("/api/verify-return/%d", id), `{"justification":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, f.tech, http.MethodPost, fmt.Sprintf("/api/verify-return/%d", id), `{"returnedSamples":0,"justification":"all lost"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"Returned with Remarks"`)

	w = call(t, r, f.tech, http.MethodPost, fmt.Sprintf("/api/verify-return/%d", id), `{"returnedSamples":50}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_PROCESSED", decodeErr(t, w).Error.Code)
}

func TestHandlerForbiddenAndBadInput(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := call(t, r, f.tech, http.MethodPost, "/api/borrow", fmt.Sprintf(`{"packageId":%d,"verifierId":%d}`, f.pkg, f.tech2.ID))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeErr(t, w).Error.Code)

	w = call(t, r, f.eng, http.MethodPost, "/api/borrow", `{"packageId":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, r, f.eng, http.MethodPost, "/api/return/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/borrow", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerOverdue(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	f.clock.Set(baseTime.Add(-30 * time.Hour))
	_, err := f.svc.Borrow(t.Context(), f.eng, f.pkg, f.tech.ID)
	require.NoError(t, err)
	f.clock.Set(baseTime)

	w := call(t, r, f.eng, http.MethodGet, "/api/borrow-records/overdue", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, r, f.admin, http.MethodGet, "/api/borrow-records/overdue?horizon=2h", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Items []DueRecordResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.True(t, body.Items[0].Overdue)
	assert.Equal(t, "QFN-007", body.Items[0].PackageCode)

	w = call(t, r, f.tech, http.MethodGet, "/api/borrow-records/overdue?horizon=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerHistoryAndExport(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	seedHistory(t, f)

	w := call(t, r, f.eng, http.MethodGet, "/api/borrow-history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Items []HistoryItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Items, 1)

	w = call(t, r, f.admin, http.MethodGet, "/api/borrow-history/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, XLSXContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "borrow-history-20261016.xlsx")
	assert.NotZero(t, w.Body.Len())
}
