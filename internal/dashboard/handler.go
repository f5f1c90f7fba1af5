package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/erp-system/erp/internal/view"
)

// Handler serves /dashboard.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer *view.Renderer
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, renderer *view.Renderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/dashboard/index.html", "Kontrolna tabla", overview, http.StatusOK)
}
