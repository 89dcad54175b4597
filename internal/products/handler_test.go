package products_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/products/productstest"
)

func newTestRouter(store *productstest.Store) http.Handler {
	svc := products.NewService(store, nil, nil, nil)
	r := chi.NewRouter()
	r.Route("/api/productos", products.NewHandler(nil, svc).MountRoutes)
	return r
}

func TestHandlerCreateAndGet(t *testing.T) {
	store := productstest.New()
	router := newTestRouter(store)

	body := `{"nombre":"Leche Gloria","precio":"3.80","stock":12,"categoria":"lacteos","estado":false}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/productos/crear_producto", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created products.Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.True(t, created.Active, "estado in the body must be ignored")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/productos/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerErrorStatuses(t *testing.T) {
	store := productstest.New()
	stocked := store.Seed("Yogurt", "5.50", 3)
	router := newTestRouter(store)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed id", http.MethodGet, "/api/productos/abc", "", http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/productos/00000000-0000-0000-0000-000000000001", "", http.StatusNotFound},
		{"invalid payload", http.MethodPost, "/api/productos/crear_producto", `{"nombre":"","precio":"0"}`, http.StatusBadRequest},
		{"auto deactivate with stock", http.MethodPatch, "/api/productos/" + stocked.ID.String() + "/desactivar?modo=auto", "", http.StatusConflict},
		{"bad mode", http.MethodPatch, "/api/productos/" + stocked.ID.String() + "/activar?modo=x", "", http.StatusBadRequest},
		{"search miss", http.MethodGet, "/api/productos/buscar?nombre=quinua", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestHandlerListActiveReturnsEmptyArray(t *testing.T) {
	router := newTestRouter(productstest.New())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/productos/lista_productos", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())
}
