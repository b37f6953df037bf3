package handler

import (
	"encoding/json"
	"net/http"

	"image_gen/internal/app/service"
	"image_gen/internal/common"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const msgInvalidPayload = "Invalid request payload"

type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
	r.Post("/create-admin", h.createAdmin)
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req service.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	resp, err := h.authService.Register(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	resp, err := h.authService.CreateAdmin(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}
