package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/craftlink/craftlink/internal/apperr"
)

// adminSecretHeader authenticates operator requests. The ban surface is for
// server operators, not logged-in users, so it bypasses the session layer.
const adminSecretHeader = "X-Admin-Secret"

type banRequest struct {
	MinecraftUUID string `json:"minecraft_uuid"`
}

// handleAdminBan flags the user bound to the given Minecraft account as
// banned. Banned users keep their session but can no longer rebind.
func (s *Server) handleAdminBan(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(adminSecretHeader)
	if s.cfg.AdminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.AdminSecret)) != 1 {
		writeError(w, apperr.ErrUnauthenticated)
		return
	}

	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MinecraftUUID == "" {
		writeError(w, apperr.ErrBadRequest)
		return
	}

	if err := s.users.BanByMinecraftUUID(r.Context(), req.MinecraftUUID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
