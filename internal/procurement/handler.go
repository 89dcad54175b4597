package procurement

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bodega/bodega-api/internal/platform/httpx"
)

// Handler manages purchase order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lista_pedidos", h.list)
	r.Get("/pedido/{numeroPedido}", h.getByNumber)
	r.Post("/crear_pedido", h.create)
	r.Put("/actualizar/{id}", h.update)
	r.Patch("/cancelar/{numeroPedido}", h.cancel)
	r.Patch("/recibir/{numeroPedido}", h.receive)
}

type orderResponse struct {
	Message string `json:"message"`
	Order   Order  `json:"compra"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "numeroPedido"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input OrderInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse{Message: "Compra registrada correctamente", Order: order})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input OrderInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	order, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse{Message: "Compra actualizada", Order: order})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Cancel(r.Context(), chi.URLParam(r, "numeroPedido"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse{Message: "Compra cancelada correctamente", Order: order})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Receive(r.Context(), chi.URLParam(r, "numeroPedido"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse{Message: "Compra recibida correctamente", Order: order})
}
