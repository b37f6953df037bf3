package handler

import (
	"net/http"
	"strings"

	"image_gen/internal/app/service"
	"image_gen/internal/common"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type AdminHandler struct {
	images *service.ImageService
	log    zerolog.Logger
}

func NewAdminHandler(images *service.ImageService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{images: images, log: log}
}

// RegisterRoutes expects r to already run Authenticator and RequireAdmin.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/images", h.listImages)
}

func (h *AdminHandler) listImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := parseListOptions(q)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	opts.OwnerID = strings.TrimSpace(q.Get("userId"))

	list, err := h.images.ListAll(r.Context(), opts)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, list)
}
