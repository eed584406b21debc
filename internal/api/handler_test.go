package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pos-service/internal/receipt"
	"pos-service/internal/service"
	"pos-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	fs     afero.Fs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.NewStore(store.DriverSQLite, filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs := afero.NewMemMapFs()
	catalog := service.NewCatalogService(st, nil)
	sales := service.NewSaleService(st, receipt.NewEmitterFs(fs, "receipts", time.UTC), nil, nil, 0)
	till := service.NewTill(catalog, sales)
	reports := service.NewReportService(st, time.UTC)
	stock := service.NewStockMirror(st, nil)

	router := gin.New()
	NewHandler(catalog, till, reports, stock, st).SetupRoutes(router)

	return &testServer{router: router, fs: fs}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil).Code)
}

func TestProductEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "P1", "name": "Widget", "unit_price": "10.00", "stock": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "P1", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "P1", "name": "Again", "unit_price": "1", "stock": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "P2", "name": "Bad", "unit_price": "-1", "stock": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "P3", "name": "No price"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/products/P1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Widget", decode(t, w)["name"])

	w = s.do(t, http.MethodGet, "/api/v1/products/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPatch, "/api/v1/products/P1", gin.H{"stock": 9})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(9), decode(t, w)["stock"])

	w = s.do(t, http.MethodGet, "/api/v1/products/P1/stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(9), decode(t, w)["stock"])

	w = s.do(t, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var products []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	assert.Len(t, products, 1)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/products/P1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/products/P1", nil).Code)
}

func TestProductCodesAreTrimmed(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": " P1 ", "name": "Widget", "unit_price": "2.50", "stock": 4})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "P1", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/v1/products/%20P1%20", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "P1", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "P1 ", "qty": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPatch, "/api/v1/cart/items/%20P1", gin.H{"qty": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "7.5", decode(t, w)["subtotal"])

	w = s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "   ", "name": "Blank", "unit_price": "1", "stock": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCartAndCheckout(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "P1", "name": "Widget", "unit_price": "10.00", "stock": 5})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "P1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "10", decode(t, w)["subtotal"])

	w = s.do(t, http.MethodPatch, "/api/v1/cart/items/P1", gin.H{"qty": 3})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "P1", "qty": 3})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "P1", "qty": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "ZZ"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/discount", gin.H{"type": "amount", "value": "150"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/discount", gin.H{"type": "coupon", "value": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/cart/discount", gin.H{"type": "amount", "value": "5"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "25", decode(t, w)["total"])

	w = s.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotContains(t, body, "receipt_error")
	sale := body["sale"].(map[string]interface{})
	assert.NotZero(t, sale["sale_id"])

	w = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["lines"])

	w = s.do(t, http.MethodGet, "/api/v1/products/P1", nil)
	assert.Equal(t, float64(2), decode(t, w)["stock"])

	files, err := afero.ReadDir(s.fs, "receipts")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	w = s.do(t, http.MethodPost, "/api/v1/cart/checkout", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRemoveAndCancel(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "P1", "name": "Widget", "unit_price": "1", "stock": 5})
	s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "P1", "qty": 2})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/v1/cart/items/P1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/cart/items/P1", nil).Code)

	s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "P1", "qty": 2})
	w := s.do(t, http.MethodDelete, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["lines"])
}

func TestReports(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/products", gin.H{"code": "P1", "name": "Widget", "unit_price": "10.00", "stock": 5})
	s.do(t, http.MethodPost, "/api/v1/cart/items", gin.H{"code": "P1", "qty": 2})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/cart/checkout", nil).Code)

	today := time.Now().UTC().Format("2006-01-02")

	w := s.do(t, http.MethodGet, "/api/v1/reports/daily?date="+today, nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)
	assert.Equal(t, today, report["date"])
	assert.Equal(t, float64(1), report["sales_count"])

	w = s.do(t, http.MethodGet, "/api/v1/reports/daily/export?date="+today, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ",P1,Widget,2,10.00"), lines[1])

	w = s.do(t, http.MethodGet, "/api/v1/reports/daily?date=15/10/2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
