package sales

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bodega/bodega-api/internal/platform/httpx"
)

// IdempotencyHeader carries the client's replay key on crear_venta.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the sale engine over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lista", h.listSales)
	r.Get("/lineas", h.listActiveLines)
	r.Get("/detalle/{id}", h.getSale)
	r.Get("/producto/{id}", h.getLineItem)
	r.Post("/crear_venta", h.createSale)
	r.Put("/actualizar_producto/{id}", h.amendSale)
	r.Patch("/desactivar_venta/{id}", h.deactivateSale)
}

type saleResponse struct {
	Message string `json:"message"`
	Sale    Sale   `json:"venta"`
}

// amendRequest accepts either a single {productoId, cantidad} pair or a
// productos list of them.
type amendRequest struct {
	AmendLine
	Lines []AmendLine `json:"productos"`
}

func (a amendRequest) lines() []AmendLine {
	if len(a.Lines) > 0 {
		return a.Lines
	}
	if a.ProductID == uuid.Nil && a.Quantity == 0 {
		return nil
	}
	return []AmendLine{a.AmendLine}
}

type deactivateRequest struct {
	Reason string `json:"motivo"`
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseStatusFilter(r.URL.Query().Get("estado"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	list, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) listActiveLines(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListActiveLines(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []LineView{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) getLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	view, err := h.service.GetLineItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var input CreateSaleInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	sale, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse{Message: "Venta creada correctamente", Sale: sale})
}

func (h *Handler) amendSale(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req amendRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sale, err := h.service.AmendSale(r.Context(), id, req.lines())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse{Message: "Venta actualizada correctamente", Sale: sale})
}

func (h *Handler) deactivateSale(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req deactivateRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	sale, err := h.service.DeactivateSale(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse{Message: "Venta desactivada correctamente", Sale: sale})
}
