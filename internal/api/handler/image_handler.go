package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"image_gen/internal/api/middleware"
	"image_gen/internal/app/service"
	"image_gen/internal/common"
	"image_gen/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

// createdHeaderLayout is RFC 3339 with millisecond precision.
const createdHeaderLayout = "2006-01-02T15:04:05.000Z07:00"

type ImageHandler struct {
	generation *service.GenerationService
	images     *service.ImageService
	// generateLimit wraps POST /generate-image only.
	generateLimit func(http.Handler) http.Handler
	log           zerolog.Logger
}

func NewImageHandler(generation *service.GenerationService, images *service.ImageService, generateLimit func(http.Handler) http.Handler, log zerolog.Logger) *ImageHandler {
	if generateLimit == nil {
		generateLimit = func(next http.Handler) http.Handler { return next }
	}
	return &ImageHandler{generation: generation, images: images, generateLimit: generateLimit, log: log}
}

// RegisterRoutes expects r to already run Authenticator.
func (h *ImageHandler) RegisterRoutes(r chi.Router) {
	r.With(h.generateLimit).Post("/generate-image", h.generate)
	r.Get("/images", h.list)
	r.Get("/images/stats", h.stats)
	r.Get("/images/{imageID}", h.get)
}

type generateRequest struct {
	Prompt  string                  `json:"prompt"`
	Options model.GenerationOptions `json:"options"`
}

func (h *ImageHandler) generate(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	res, err := h.generation.Generate(r.Context(), id.UserID, req.Prompt, req.Options)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	w.Header().Set("X-Image-Id", res.ImageID)
	common.RespondWithBytes(w, http.StatusCreated, res.Format, res.Data)
}

func (h *ImageHandler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	opts, err := parseListOptions(r.URL.Query())
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	list, err := h.images.List(r.Context(), id.UserID, opts)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, list)
}

func (h *ImageHandler) stats(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	stats, err := h.images.Stats(r.Context(), id.UserID)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *ImageHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}

	img, err := h.images.Get(r.Context(), chi.URLParam(r, "imageID"), id.UserID)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}

	etag := `"` + img.ContentHash + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Image-Prompt", headerSafe(img.Prompt))
	w.Header().Set("X-Image-Created", img.CreatedAt.UTC().Format(createdHeaderLayout))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, downloadName(img)))
	if img.ContentHash != "" && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	common.RespondWithBytes(w, http.StatusOK, img.Format, img.Data)
}

// downloadName is "<prompt-slug>-<id prefix>.<ext>".
func downloadName(img *model.Image) string {
	name := slug.Make(img.Prompt)
	if len(name) > 60 {
		name = strings.TrimRight(name[:60], "-")
	}
	if name == "" {
		name = "image"
	}
	short := img.ID
	if len(short) > 8 {
		short = short[:8]
	}
	ext := strings.TrimPrefix(img.Format, "image/")
	if ext == "" || strings.ContainsAny(ext, `/"; `) {
		ext = "bin"
	}
	return name + "-" + short + "." + ext
}

// headerSafe drops control characters a header value cannot carry.
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}
