package sales

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo, deps ServiceDeps) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/ventas", NewHandler(nil, NewService(repo, deps)).MountRoutes)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateSale(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.Seed("Galleta Soda", "5", 10)
	router := newTestRouter(repo, ServiceDeps{})

	body := `{"aplicarIGV":false,"productos":[{"productoId":"` + p.ID.String() + `","cantidad":3}]}`
	rr := doRequest(t, router, http.MethodPost, "/api/ventas/crear_venta", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Message string `json:"message"`
		Sale    Sale   `json:"venta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Venta creada correctamente", resp.Message)
	require.Equal(t, "15", resp.Sale.Total.String())
	require.Equal(t, "Persona General", resp.Sale.CustomerName)
	require.Equal(t, 7, repo.Product(p.ID).Stock)

	rr = doRequest(t, router, http.MethodGet, "/api/ventas/detalle/"+resp.Sale.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerCreateSaleReportsFailedLine(t *testing.T) {
	repo := newMemoryRepo()
	a := repo.Seed("Arroz", "4.50", 10)
	b := repo.Seed("Leche", "3.80", 1)
	router := newTestRouter(repo, ServiceDeps{})

	body := `{"productos":[{"productoId":"` + a.ID.String() + `","cantidad":2},{"productoId":"` + b.ID.String() + `","cantidad":5}]}`
	rr := doRequest(t, router, http.MethodPost, "/api/ventas/crear_venta", body, nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	var resp struct {
		Message  string `json:"message"`
		Error    string `json:"error"`
		FailedAt *int   `json:"failedAt"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.FailedAt)
	require.Equal(t, 1, *resp.FailedAt)
	require.Equal(t, "conflict", resp.Error)
	require.Equal(t, 10, repo.Product(a.ID).Stock)
}

func TestHandlerIdempotencyHeader(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.Seed("Pan", "0.30", 50)
	router := newTestRouter(repo, ServiceDeps{Idempotency: &fakeIdempotency{keys: map[string]bool{}}})

	body := `{"productos":[{"nombre":"Pan","cantidad":5}]}`
	header := http.Header{IdempotencyHeader: []string{"k-1"}}
	rr := doRequest(t, router, http.MethodPost, "/api/ventas/crear_venta", body, header)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = doRequest(t, router, http.MethodPost, "/api/ventas/crear_venta", body, header)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, 45, repo.Product(p.ID).Stock)
}

func TestHandlerAmendAndDeactivate(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.Seed("Gaseosa", "2.50", 10)
	router := newTestRouter(repo, ServiceDeps{})
	svc := NewService(repo, ServiceDeps{})
	sale := newSaleWith(t, svc, LineRequest{ProductID: idPtr(p.ID), Quantity: 3})
	path := "/api/ventas/actualizar_producto/" + sale.ID.String()

	rr := doRequest(t, router, http.MethodPut, path, `{"productoId":"`+p.ID.String()+`","cantidad":1}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, 9, repo.Product(p.ID).Stock)

	rr = doRequest(t, router, http.MethodPut, path, `{"productos":[{"productoId":"`+p.ID.String()+`","cantidad":2}]}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, 8, repo.Product(p.ID).Stock)

	rr = doRequest(t, router, http.MethodPut, path, `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, router, http.MethodPatch, "/api/ventas/desactivar_venta/"+sale.ID.String(), `{"motivo":"error de caja"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 8, repo.Product(p.ID).Stock)

	rr = doRequest(t, router, http.MethodPatch, "/api/ventas/desactivar_venta/"+sale.ID.String(), "", nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/api/ventas/producto/"+sale.Lines[0].ID.String(), "", nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/api/ventas/lista?estado=desactivada", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []Sale
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, "error de caja", *list[0].DeactivationReason)
}

func TestHandlerErrorStatuses(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), ServiceDeps{})
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed id", http.MethodGet, "/api/ventas/detalle/xyz", "", http.StatusBadRequest},
		{"unknown sale", http.MethodGet, "/api/ventas/detalle/00000000-0000-0000-0000-000000000001", "", http.StatusNotFound},
		{"unknown line", http.MethodGet, "/api/ventas/producto/00000000-0000-0000-0000-000000000001", "", http.StatusNotFound},
		{"bad estado", http.MethodGet, "/api/ventas/lista?estado=todas", "", http.StatusBadRequest},
		{"no lines", http.MethodPost, "/api/ventas/crear_venta", `{"productos":[]}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/ventas/crear_venta", `{"productos":`, http.StatusBadRequest},
		{"unknown product", http.MethodPost, "/api/ventas/crear_venta", `{"productos":[{"nombre":"Quinua","cantidad":1}]}`, http.StatusNotFound},
		{"oversized body", http.MethodPost, "/api/ventas/crear_venta", `{"clienteNombre":"` + strings.Repeat("x", 11<<10) + `"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, router, tc.method, tc.path, tc.body, nil)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestHandlerEmptyListsAreArrays(t *testing.T) {
	router := newTestRouter(newMemoryRepo(), ServiceDeps{})
	for _, path := range []string{"/api/ventas/lista", "/api/ventas/lineas"} {
		rr := doRequest(t, router, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		require.JSONEq(t, `[]`, rr.Body.String())
	}
}
