package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/craftlink/craftlink/internal/apperr"
)

// userResponse is the public shape of the current user.
type userResponse struct {
	DiscordID       string  `json:"discord_id"`
	DiscordUsername string  `json:"discord_username"`
	MinecraftUUID   *string `json:"minecraft_uuid"`
	Banned          bool    `json:"banned"`
}

// handleMe returns the authenticated user's own record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, userResponse{
		DiscordID:       strconv.FormatInt(sess.User.DiscordID, 10),
		DiscordUsername: sess.User.DiscordUsername,
		MinecraftUUID:   sess.User.MinecraftUUID,
		Banned:          sess.User.Banned,
	})
}

type usernameChangeRequest struct {
	Username string `json:"username"`
}

type usernameChangeResponse struct {
	MinecraftUUID string `json:"minecraft_uuid"`
	MinecraftName string `json:"minecraft_name"`
}

// handleUsernameChange binds (or rebinds) the caller's Minecraft account.
func (s *Server) handleUsernameChange(w http.ResponseWriter, r *http.Request) {
	var req usernameChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.ErrBadRequest)
		return
	}

	account, err := s.bindings.Rebind(r.Context(), sessionFrom(r.Context()), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usernameChangeResponse{
		MinecraftUUID: account.ID,
		MinecraftName: account.Name,
	})
}

// handleMinecraftUsernameToID resolves ?username= to a Minecraft account id.
func (s *Server) handleMinecraftUsernameToID(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, apperr.ErrBadRequest)
		return
	}

	account, err := s.bindings.MinecraftAccountByName(r.Context(), sessionFrom(r.Context()), username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleMinecraftIDToProfile resolves a Minecraft account id to its current
// profile, including the signed properties blob.
func (s *Server) handleMinecraftIDToProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, apperr.ErrBadRequest)
		return
	}

	profile, err := s.bindings.MinecraftProfileByUUID(r.Context(), sessionFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type discordUsernameResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// handleDiscordIDToUsername resolves a Discord user id to its username via
// the bot API.
func (s *Server) handleDiscordIDToUsername(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apperr.ErrBadRequest)
		return
	}

	name, err := s.bindings.DiscordNameByID(r.Context(), sessionFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, discordUsernameResponse{
		ID:       strconv.FormatInt(id, 10),
		Username: name,
	})
}
