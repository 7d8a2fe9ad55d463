package handler

import (
	"github.com/go-chi/chi/v5"

	"form-relay/internal/relay/submission"
)

// Routes mounts the health, test and submission endpoints. Forms in the
// registry without a renderer are skipped.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Health)
	r.Get("/test", h.Test)

	for _, form := range h.registry.Forms {
		if _, ok := renderers[submission.Kind(form.Kind)]; !ok {
			h.logger.Warn("No renderer for registered form, route not mounted", map[string]interface{}{
				"kind":  form.Kind,
				"route": form.Route,
			})
			continue
		}
		r.Post(form.Route, h.Relay(form))
	}
}
