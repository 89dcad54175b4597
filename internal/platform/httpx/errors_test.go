package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/bodega/bodega-api/internal/shared"
)

type indexedErr struct{ idx int }

func (e indexedErr) Error() string    { return "line failed" }
func (e indexedErr) FailedIndex() int { return e.idx }
func (e indexedErr) Unwrap() error    { return shared.ErrConflict }

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", fmt.Errorf("cantidad: %w", shared.ErrValidation), http.StatusBadRequest, "validation"},
		{"not found", fmt.Errorf("producto: %w", shared.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", fmt.Errorf("stock: %w", shared.ErrConflict), http.StatusConflict, "conflict"},
		{"serialization", fmt.Errorf("platform/db: commit tx: %w", &pgconn.PgError{Code: "40001"}), http.StatusConflict, "conflict"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, nil, tc.err)
			require.Equal(t, tc.status, rr.Code)

			var body ErrorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, tc.kind, body.Error)
			require.NotEmpty(t, body.Message)
			if tc.status == http.StatusInternalServerError {
				require.NotContains(t, body.Message, "connection reset")
			}
		})
	}
}

func TestRespondErrorReportsFailedIndex(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, fmt.Errorf("sale: %w", indexedErr{idx: 2}))

	require.Equal(t, http.StatusConflict, rr.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.FailedAt)
	require.Equal(t, 2, *body.FailedAt)
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	payload := `{"nombre":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	rr := httptest.NewRecorder()

	var target struct {
		Nombre string `json:"nombre"`
	}
	err := DecodeJSON(rr, req, &target)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecodeJSONIgnoresUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nombre":"Arroz","estado":false}`))
	rr := httptest.NewRecorder()

	var target struct {
		Nombre string `json:"nombre"`
	}
	require.NoError(t, DecodeJSON(rr, req, &target))
	require.Equal(t, "Arroz", target.Nombre)
}

func TestRespondErrorHidesSerializationDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	pgErr := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
	RespondError(rr, nil, fmt.Errorf("sales: apply line: %w", pgErr))

	require.Equal(t, http.StatusConflict, rr.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "conflict", body.Error)
	require.NotContains(t, body.Message, "serialize")
}
