package httpserver

import (
	"net/http"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginHandler exchanges credentials for a bearer token.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.Auth.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			LoggerFrom(r).Warn("login rejected", "username", req.Username)
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type recoverAdminRequest struct {
	RecoveryKey string `json:"recovery_key" validate:"required"`
	Username    string `json:"username" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// RecoverAdminHandler resets an admin password using the out-of-band
// recovery key. It is the break-glass path when every admin is locked out.
func (s *Server) RecoverAdminHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recoverAdminRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.Auth.RecoverAdmin(r.Context(), req.RecoveryKey, req.Username, req.NewPassword); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "password reset"})
	}
}
