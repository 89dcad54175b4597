package procurement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/products/productstest"
	"github.com/bodega/bodega-api/internal/shared"
)

type memoryProcRepo struct {
	*productstest.Store
	orders  map[uuid.UUID]Order
	counter int64
}

type memoryProcTx struct {
	*memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{Store: productstest.New(), orders: make(map[uuid.UUID]Order)}
}

func cloneOrder(o Order) Order {
	o.Lines = append([]Line(nil), o.Lines...)
	return o
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	restore := r.Store.Snapshot()
	saved := make(map[uuid.UUID]Order, len(r.orders))
	for k, v := range r.orders {
		saved[k] = cloneOrder(v)
	}
	counter := r.counter
	if err := fn(ctx, &memoryProcTx{memoryProcRepo: r}); err != nil {
		restore()
		r.orders = saved
		r.counter = counter
		return err
	}
	return nil
}

func (r *memoryProcRepo) List(ctx context.Context) ([]Order, error) {
	out := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (r *memoryProcRepo) GetByNumber(ctx context.Context, number string) (Order, error) {
	for _, o := range r.orders {
		if o.Number == number {
			return cloneOrder(o), nil
		}
	}
	return Order{}, ErrNotFound
}

func (tx *memoryProcTx) NextNumber(ctx context.Context) (string, error) {
	tx.counter++
	return FormatNumber(tx.counter), nil
}

func (tx *memoryProcTx) InsertOrder(ctx context.Context, o Order) error {
	tx.orders[o.ID] = cloneOrder(o)
	return nil
}

func (tx *memoryProcTx) UpdateOrder(ctx context.Context, o Order) error {
	if _, ok := tx.orders[o.ID]; !ok {
		return ErrNotFound
	}
	tx.orders[o.ID] = cloneOrder(o)
	return nil
}

func (tx *memoryProcTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	o, ok := tx.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (tx *memoryProcTx) GetByNumberForUpdate(ctx context.Context, number string) (Order, error) {
	return tx.GetByNumber(ctx, number)
}

func (tx *memoryProcTx) ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []Line) error {
	o := tx.orders[orderID]
	o.Lines = append([]Line(nil), lines...)
	tx.orders[orderID] = o
	return nil
}

type countingCatalog struct{ bumps int }

func (c *countingCatalog) InvalidateCache(context.Context) { c.bumps++ }

func line(name string, qty int, price string) LineInput {
	return LineInput{Name: name, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, OrderInput{Supplier: "Alicorp", Lines: []LineInput{line("Aceite Primor", 12, "7.50"), line("Fideos", 20, "2.10")}})
	require.NoError(t, err)
	require.Equal(t, "PED-01", first.Number)
	require.Equal(t, StatusPending, first.Status)
	require.True(t, first.Total.Equal(decimal.RequireFromString("132")))
	require.True(t, first.Lines[0].Subtotal.Equal(decimal.RequireFromString("90")))

	second, err := svc.Create(ctx, OrderInput{Supplier: "Gloria", Lines: []LineInput{line("Leche", 24, "3.80")}})
	require.NoError(t, err)
	require.Equal(t, "PED-02", second.Number)

	got, err := svc.GetByNumber(ctx, "PED-02")
	require.NoError(t, err)
	require.Equal(t, "Gloria", got.Supplier)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestFormatNumberWidens(t *testing.T) {
	require.Equal(t, "PED-07", FormatNumber(7))
	require.Equal(t, "PED-99", FormatNumber(99))
	require.Equal(t, "PED-100", FormatNumber(100))
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryProcRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, OrderInput{Supplier: "Alicorp"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, OrderInput{Lines: []LineInput{line("Fideos", 1, "2")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, OrderInput{Supplier: "Alicorp", Lines: []LineInput{line("Fideos", 0, "2")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, OrderInput{Supplier: "Alicorp", Lines: []LineInput{line("Fideos", 1, "-2")}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRecomputesTotals(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	order, err := svc.Create(ctx, OrderInput{Supplier: "Alicorp", Lines: []LineInput{line("Fideos", 20, "2.10")}})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, order.ID, OrderInput{Supplier: "Alicorp SAA", Lines: []LineInput{line("Fideos", 10, "2.10"), line("Atún", 5, "6.00")}})
	require.NoError(t, err)
	require.Equal(t, "PED-01", updated.Number)
	require.Len(t, updated.Lines, 2)
	require.True(t, updated.Total.Equal(decimal.RequireFromString("51")))

	_, err = svc.Update(ctx, uuid.New(), OrderInput{Supplier: "x", Lines: []LineInput{line("a", 1, "1")}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancel(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	order, err := svc.Create(ctx, OrderInput{Supplier: "Alicorp", Lines: []LineInput{line("Fideos", 20, "2.10")}})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.Number)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, order.Number)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Update(ctx, order.ID, OrderInput{Supplier: "x", Lines: []LineInput{line("a", 1, "1")}})
	require.ErrorIs(t, err, ErrCancelled)

	_, err = svc.Receive(ctx, order.Number)
	require.ErrorIs(t, err, ErrCancelled)

	_, err = svc.Cancel(ctx, "PED-99")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiveRestocksAndReactivates(t *testing.T) {
	repo := newMemoryProcRepo()
	catalog := &countingCatalog{}
	svc := NewService(repo, catalog, nil, nil)
	ctx := context.Background()
	empty := repo.Seed("Leche Gloria", "3.80", 0)
	stocked := repo.Seed("Fideos", "2.10", 5)

	order, err := svc.Create(ctx, OrderInput{Supplier: "Gloria", Lines: []LineInput{
		{ProductID: &empty.ID, Name: "Leche", Quantity: 24, UnitPrice: decimal.RequireFromString("3.10")},
		line("Fideos", 10, "1.80"),
	}})
	require.NoError(t, err)

	received, err := svc.Receive(ctx, order.Number)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, received.Status)
	require.NotNil(t, received.DeliveryAt)

	require.Equal(t, 24, repo.Product(empty.ID).Stock)
	require.True(t, repo.Product(empty.ID).Active)
	require.Equal(t, 15, repo.Product(stocked.ID).Stock)
	require.Equal(t, 1, catalog.bumps)

	movements := repo.Movements()
	require.Len(t, movements, 2)
	require.Equal(t, products.ReasonPurchase, movements[0].Reason)
	require.Equal(t, order.Number, movements[0].RefID)

	_, err = svc.Receive(ctx, order.Number)
	require.ErrorIs(t, err, ErrNotPending)
	require.Equal(t, 24, repo.Product(empty.ID).Stock)
}

func TestReceiveRollsBackOnUnknownProduct(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	known := repo.Seed("Fideos", "2.10", 5)

	order, err := svc.Create(ctx, OrderInput{Supplier: "Alicorp", Lines: []LineInput{line("Fideos", 10, "1.80"), line("Quinua", 3, "9.00")}})
	require.NoError(t, err)

	_, err = svc.Receive(ctx, order.Number)
	le, ok := AsLineError(err)
	require.True(t, ok)
	require.Equal(t, 1, le.FailedAt)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Equal(t, 5, repo.Product(known.ID).Stock)
	require.Empty(t, repo.Movements())
	stored, err := svc.GetByNumber(ctx, order.Number)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestDateAcceptsDayAndTimestamp(t *testing.T) {
	var in OrderInput
	require.NoError(t, json.Unmarshal([]byte(`{"proveedor":"x","fechaCompra":"2024-03-05","fechaEntrega":"2024-03-09T15:04:05Z"}`), &in))
	require.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), in.OrderedAt.Time)
	require.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), in.DeliveryAt.Time)

	out, err := json.Marshal(in.OrderedAt)
	require.NoError(t, err)
	require.Equal(t, `"2024-03-05"`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"fechaCompra":"ayer"}`), &in))
}

func TestHandlerRoutes(t *testing.T) {
	repo := newMemoryProcRepo()
	repo.Seed("Fideos", "2.10", 0)
	r := chi.NewRouter()
	r.Route("/api/compras", NewHandler(nil, NewService(repo, nil, nil, nil)).MountRoutes)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/api/compras/crear_pedido", `{"proveedor":"Alicorp","productos":[{"nombre":"Fideos","cantidad":10,"precioUnitario":"1.80"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Message string `json:"message"`
		Order   Order  `json:"compra"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "PED-01", created.Order.Number)
	require.Equal(t, "18", created.Order.Total.String())

	require.Equal(t, http.StatusOK, do(http.MethodGet, "/api/compras/pedido/PED-01", "").Code)
	require.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/compras/pedido/PED-09", "").Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPut, "/api/compras/actualizar/nope", `{}`).Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/api/compras/crear_pedido", `{"proveedor":""}`).Code)
	require.Equal(t, http.StatusOK, do(http.MethodPatch, "/api/compras/recibir/PED-01", "").Code)
	require.Equal(t, http.StatusConflict, do(http.MethodPatch, "/api/compras/cancelar/PED-01", "").Code)

	rr = do(http.MethodGet, "/api/compras/lista_pedidos", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, StatusDelivered, list[0].Status)
}
