// REST surface. Handlers are thin: decode, call into the store or hub,
// map sentinel errors onto status codes, encode.

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf(cfg, "API: Encode error: %v", err)
	}
}

// writeAPIError maps the error taxonomy onto HTTP statuses: not-found
// failures are 404, state conflicts 409, everything else 400.
func writeAPIError(cfg *Config, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest

	switch {
	case errors.Is(err, errUserNotFound),
		errors.Is(err, errLobbyNotFound),
		errors.Is(err, errReplyNotFound),
		errors.Is(err, errBotUnknown):
		status = http.StatusNotFound
	case errors.Is(err, errNoActiveTrivia):
		status = http.StatusConflict
	}

	writeJSON(cfg, w, status, map[string]string{"detail": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type registerRequest struct {
	Username string `json:"username"`
}

type createLobbyRequest struct {
	Name      string `json:"name"`
	MaxHumans int    `json:"max_humans"`
	MaxBots   int    `json:"max_bots"`
	IsPrivate bool   `json:"is_private"`
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

type sendMessageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	ReplyTo string `json:"reply_to"`
}

type triviaAnswerRequest struct {
	UserID string `json:"user_id"`
	Answer int    `json:"answer"`
}

type addBotRequest struct {
	BotName string `json:"bot_name"`
}

func serveRegister(cfg *Config, users *Directory) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		rec, err := users.Register(req.Username)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		logf(cfg, "API: Registered user %q from %s", rec.Username, realIP(r))

		writeJSON(cfg, w, http.StatusOK, map[string]string{
			"user_id":  rec.ID,
			"username": rec.Username,
		})
	}
}

func serveUser(cfg *Config, users *Directory) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		rec, err := users.Get(p.ByName("userid"))
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, rec)
	}
}

func serveCreateLobby(cfg *Config, lobbies *LobbyStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createLobbyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		lobby := lobbies.Create(req.Name, req.MaxHumans, req.MaxBots, req.IsPrivate)

		logf(cfg, "API: Created lobby %q (%s) from %s", lobby.Name, lobby.ID, realIP(r))

		writeJSON(cfg, w, http.StatusOK, map[string]string{
			"lobby_id":    lobby.ID,
			"invite_code": lobby.InviteCode,
			"name":        lobby.Name,
		})
	}
}

// lobbySummary is one entry in the public lobby listing.
type lobbySummary struct {
	LobbyID      string    `json:"lobby_id"`
	Name         string    `json:"name"`
	UserCount    int       `json:"user_count"`
	ActiveUsers  int       `json:"active_users"`
	MaxHumans    int       `json:"max_humans"`
	BotCount     int       `json:"bot_count"`
	TriviaActive bool      `json:"has_trivia_active"`
	CreatedAt    time.Time `json:"created_at"`
}

func serveListLobbies(cfg *Config, lobbies *LobbyStore, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		out := make([]lobbySummary, 0)
		for _, lobby := range lobbies.List() {
			if lobby.Private {
				continue
			}

			summary := lobbySummary{
				LobbyID:   lobby.ID,
				Name:      lobby.Name,
				UserCount: len(lobby.Members),
				MaxHumans: lobby.MaxHumans,
				CreatedAt: lobby.CreatedAt,
			}
			if hub := lm.Peek(lobby.ID); hub != nil {
				snap := hub.Snapshot()
				summary.ActiveUsers = len(snap.ActiveUsers)
				summary.BotCount = len(snap.Bots)
				summary.TriviaActive = snap.TriviaActive
			}
			out = append(out, summary)
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{"lobbies": out})
	}
}

func serveLobbyInfo(cfg *Config, lobbies *LobbyStore, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		lobby, ok := lobbies.Get(p.ByName("lobbyid"))
		if !ok {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		out := map[string]any{
			"lobby":         lobby,
			"active_users":  []string{},
			"bots":          []string{},
			"trivia_active": false,
		}
		if hub := lm.Peek(lobby.ID); hub != nil {
			snap := hub.Snapshot()
			out["active_users"] = snap.ActiveUsers
			out["bots"] = snap.Bots
			out["trivia_active"] = snap.TriviaActive
			out["message_count"] = snap.MessageCount
		}

		writeJSON(cfg, w, http.StatusOK, out)
	}
}

func joinResponse(lobby Lobby, rejoined bool) map[string]any {
	return map[string]any{
		"lobby_id": lobby.ID,
		"name":     lobby.Name,
		"rejoined": rejoined,
	}
}

func serveInviteJoin(cfg *Config, users *Directory, lobbies *LobbyStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req memberRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		username, err := users.ResolveUsername(req.UserID)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		lobbyID, err := lobbies.FindByInvite(p.ByName("code"))
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		rejoined, err := lobbies.Join(lobbyID, username)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		lobby, _ := lobbies.Get(lobbyID)

		logf(cfg, "API: %q joined lobby %s by invite", username, lobbyID)

		writeJSON(cfg, w, http.StatusOK, joinResponse(lobby, rejoined))
	}
}

func servePublicJoin(cfg *Config, users *Directory, lobbies *LobbyStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req memberRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		username, err := users.ResolveUsername(req.UserID)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		lobbyID := p.ByName("lobbyid")
		if !lobbies.LobbyExists(lobbyID) {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}
		if lobbies.IsPrivate(lobbyID) {
			writeAPIError(cfg, w, errLobbyPrivate)
			return
		}

		rejoined, err := lobbies.Join(lobbyID, username)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		lobby, _ := lobbies.Get(lobbyID)

		logf(cfg, "API: %q joined lobby %s", username, lobbyID)

		writeJSON(cfg, w, http.StatusOK, joinResponse(lobby, rejoined))
	}
}

func serveLeave(cfg *Config, users *Directory, lobbies *LobbyStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req memberRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		username, err := users.ResolveUsername(req.UserID)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		if err := lobbies.Leave(p.ByName("lobbyid"), username); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]string{"message": "left lobby"})
	}
}

func serveAddBot(cfg *Config, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req addBotRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		hub := lm.Hub(p.ByName("lobbyid"))
		if hub == nil {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		persona, count, err := hub.AddBot(req.BotName)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"message":   persona.name + " added to lobby",
			"bot_count": count,
			"bot_info": map[string]string{
				"name":        persona.name,
				"avatar":      persona.avatar,
				"description": persona.description,
			},
		})
	}
}

func serveRemoveBot(cfg *Config, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		hub := lm.Hub(p.ByName("lobbyid"))
		if hub == nil {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		name := p.ByName("botname")
		count, err := hub.RemoveBot(name)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"message":   name + " removed from lobby",
			"bot_count": count,
		})
	}
}

func serveTriviaAnswer(cfg *Config, users *Directory, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req triviaAnswerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		username, err := users.ResolveUsername(req.UserID)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		hub := lm.Hub(p.ByName("lobbyid"))
		if hub == nil {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		total, err := hub.SubmitAnswer(username, req.Answer)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"message":       "Answer submitted successfully",
			"answer_index":  req.Answer,
			"total_answers": total,
		})
	}
}

func serveSendMessage(cfg *Config, users *Directory, lobbies *LobbyStore, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req sendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		username, err := users.ResolveUsername(req.UserID)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		lobbyID := p.ByName("lobbyid")
		lobby, ok := lobbies.Get(lobbyID)
		if !ok {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		member := false
		for _, name := range lobby.Members {
			if name == username {
				member = true
				break
			}
		}
		if !member {
			writeAPIError(cfg, w, errNotMember)
			return
		}

		hub := lm.Hub(lobbyID)
		if hub == nil {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		m, err := hub.PostMessage(username, req.Message, req.ReplyTo)
		if err != nil {
			writeAPIError(cfg, w, err)
			return
		}

		users.Touch(req.UserID)

		writeJSON(cfg, w, http.StatusOK, m)
	}
}

func serveMessages(cfg *Config, lobbies *LobbyStore, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		lobbyID := p.ByName("lobbyid")
		if !lobbies.LobbyExists(lobbyID) {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		messages, total := []Message{}, 0
		if hub := lm.Peek(lobbyID); hub != nil {
			messages, total = hub.History(limit, offset)
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"messages": messages,
			"total":    total,
		})
	}
}

func serveBotCatalog(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		out := make(map[string]map[string]string, len(botPersonas))
		for name, persona := range botPersonas {
			out[name] = map[string]string{
				"personality": persona.personality,
				"avatar":      persona.avatar,
				"description": persona.description,
			}
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{"bots": out})
	}
}

func serveStats(cfg *Config, users *Directory, lobbies *LobbyStore, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		snapshots := lm.Snapshots()

		connections, triviaRounds := 0, 0
		for _, snap := range snapshots {
			connections += snap.Connections
			if snap.TriviaActive {
				triviaRounds++
			}
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"total_users":          users.Count(),
			"total_lobbies":        lobbies.Count(),
			"active_lobbies":       len(snapshots),
			"total_connections":    connections,
			"active_trivia_rounds": triviaRounds,
			"dropped_sends":        lm.DroppedSends(),
		})
	}
}

// QR handler: renders the lobby's invite join URL as a PNG using go-qrcode.
func serveLobbyQR(cfg *Config, lobbies *LobbyStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		lobby, ok := lobbies.Get(p.ByName("lobbyid"))
		if !ok {
			writeAPIError(cfg, w, errLobbyNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/invites/" + lobby.InviteCode + "/join"

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
