package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/franciscofreire-cloud/lista-compras/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 5. Perfil & tema
// ============================================================

func getProfileHandler(profileSvc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/profile")
		defer span.End()

		profile, err := profileSvc.Get(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func updateProfileHandler(profileSvc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/profile")
		defer span.End()

		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		profile, err := profileSvc.UpdateName(ctx, UserIDFromContext(ctx), req.Name)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// toggleThemeHandler flips the theme, or sets it explicitly when the
// body carries {"theme": "dark"}.
func toggleThemeHandler(profileSvc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/profile/theme")
		defer span.End()

		var req struct {
			Theme string `json:"theme"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		userID := UserIDFromContext(ctx)
		var err error
		var profile any
		if req.Theme != "" {
			profile, err = profileSvc.SetTheme(ctx, userID, req.Theme)
		} else {
			profile, err = profileSvc.ToggleTheme(ctx, userID)
		}
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}
