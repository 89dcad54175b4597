package products

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bodega/bodega-api/internal/platform/httpx"
)

// Handler exposes the catalog over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lista_productos", h.listActive)
	r.Get("/buscar", h.searchByName)
	r.Post("/crear_producto", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/movimientos", h.movements)
	r.Put("/{id}", h.update)
	r.Patch("/{id}/desactivar", h.deactivate)
	r.Patch("/{id}/activar", h.activate)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListActive(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []Product{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) searchByName(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.GetByName(r.Context(), r.URL.Query().Get("nombre"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limite"))
	list, err := h.service.Movements(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []StockMovement{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input ProductInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input ProductInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	mode, err := ParseActivationMode(r.URL.Query().Get("modo"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var p Product
	if active {
		p, err = h.service.Activate(r.Context(), id, mode)
	} else {
		p, err = h.service.Deactivate(r.Context(), id, mode)
	}
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
