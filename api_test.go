package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
)

type testAPI struct {
	mux     *httprouter.Router
	users   *Directory
	lobbies *LobbyStore
	lm      *LobbyManager
}

func newTestAPI(cfg *Config) *testAPI {
	users := newDirectory()
	lobbies := newLobbyStore()
	lm := newLobbyManager(cfg, users, lobbies)
	lm.purge = lobbies.Remove

	mux := httprouter.New()
	mux.POST("/register", serveRegister(cfg, users))
	mux.GET("/users/:userid", serveUser(cfg, users))
	mux.POST("/lobbies", serveCreateLobby(cfg, lobbies))
	mux.GET("/lobbies", serveListLobbies(cfg, lobbies, lm))
	mux.GET("/lobbies/:lobbyid", serveLobbyInfo(cfg, lobbies, lm))
	mux.POST("/invites/:code/join", serveInviteJoin(cfg, users, lobbies))
	mux.POST("/lobbies/:lobbyid/join", servePublicJoin(cfg, users, lobbies))
	mux.POST("/lobbies/:lobbyid/leave", serveLeave(cfg, users, lobbies))
	mux.POST("/lobbies/:lobbyid/bots", serveAddBot(cfg, lm))
	mux.DELETE("/lobbies/:lobbyid/bots/:botname", serveRemoveBot(cfg, lm))
	mux.POST("/lobbies/:lobbyid/trivia-answer", serveTriviaAnswer(cfg, users, lm))
	mux.POST("/lobbies/:lobbyid/messages", serveSendMessage(cfg, users, lobbies, lm))
	mux.GET("/lobbies/:lobbyid/messages", serveMessages(cfg, lobbies, lm))
	mux.GET("/bots", serveBotCatalog(cfg))
	mux.GET("/stats", serveStats(cfg, users, lobbies, lm))

	return &testAPI{mux: mux, users: users, lobbies: lobbies, lm: lm}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, wantStatus int) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		t.Fatalf("%s %s = %d, want %d (body: %s)", method, path, rec.Code, wantStatus, rec.Body.String())
	}

	out := make(map[string]any)
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return out
}

func TestRegisterEndpoint(t *testing.T) {
	api := newTestAPI(testConfig())

	resp := api.do(t, "POST", "/register", map[string]string{"username": "alice"}, http.StatusOK)
	if resp["user_id"] == "" || resp["username"] != "alice" {
		t.Fatalf("unexpected register response: %v", resp)
	}

	api.do(t, "POST", "/register", map[string]string{"username": "alice"}, http.StatusBadRequest)
	api.do(t, "POST", "/register", map[string]string{"username": "x"}, http.StatusBadRequest)
}

func TestLobbyLifecycleEndpoints(t *testing.T) {
	api := newTestAPI(testConfig())

	user := api.do(t, "POST", "/register", map[string]string{"username": "alice"}, http.StatusOK)
	userID := user["user_id"].(string)

	lobby := api.do(t, "POST", "/lobbies", map[string]any{
		"name": "Friday Night", "max_humans": 4, "max_bots": 2,
	}, http.StatusOK)
	lobbyID := lobby["lobby_id"].(string)
	invite := lobby["invite_code"].(string)

	join := api.do(t, "POST", "/lobbies/"+lobbyID+"/join", map[string]string{"user_id": userID}, http.StatusOK)
	if join["rejoined"] != false {
		t.Fatalf("unexpected join response: %v", join)
	}

	api.do(t, "POST", "/invites/"+invite+"/join", map[string]string{"user_id": userID}, http.StatusOK)
	api.do(t, "POST", "/invites/NOPECODE/join", map[string]string{"user_id": userID}, http.StatusNotFound)

	sent := api.do(t, "POST", "/lobbies/"+lobbyID+"/messages", map[string]string{
		"user_id": userID, "message": "hello lobby",
	}, http.StatusOK)
	if sent["message"] != "hello lobby" || sent["type"] != msgTypeUser {
		t.Fatalf("unexpected send response: %v", sent)
	}

	history := api.do(t, "GET", "/lobbies/"+lobbyID+"/messages", nil, http.StatusOK)
	if history["total"].(float64) != 1 {
		t.Fatalf("expected 1 logged message, got %v", history["total"])
	}

	api.do(t, "POST", "/lobbies/"+lobbyID+"/leave", map[string]string{"user_id": userID}, http.StatusOK)
	api.do(t, "POST", "/lobbies/"+lobbyID+"/leave", map[string]string{"user_id": userID}, http.StatusBadRequest)
	api.do(t, "POST", "/lobbies/missing/join", map[string]string{"user_id": userID}, http.StatusNotFound)
}

func TestPrivateLobbyRequiresInvite(t *testing.T) {
	api := newTestAPI(testConfig())

	user := api.do(t, "POST", "/register", map[string]string{"username": "alice"}, http.StatusOK)
	userID := user["user_id"].(string)

	lobby := api.do(t, "POST", "/lobbies", map[string]any{
		"name": "Secret", "max_humans": 4, "is_private": true,
	}, http.StatusOK)
	lobbyID := lobby["lobby_id"].(string)

	api.do(t, "POST", "/lobbies/"+lobbyID+"/join", map[string]string{"user_id": userID}, http.StatusBadRequest)
	api.do(t, "POST", "/invites/"+lobby["invite_code"].(string)+"/join", map[string]string{"user_id": userID}, http.StatusOK)

	// Private lobbies stay out of the public listing.
	listing := api.do(t, "GET", "/lobbies", nil, http.StatusOK)
	if lobbies := listing["lobbies"].([]any); len(lobbies) != 0 {
		t.Fatalf("expected private lobby hidden from listing, got %v", lobbies)
	}
}

func TestSendMessageRequiresMembership(t *testing.T) {
	api := newTestAPI(testConfig())

	user := api.do(t, "POST", "/register", map[string]string{"username": "lurker"}, http.StatusOK)
	userID := user["user_id"].(string)

	lobby := api.do(t, "POST", "/lobbies", map[string]any{"name": "Members Only", "max_humans": 4}, http.StatusOK)
	lobbyID := lobby["lobby_id"].(string)

	api.do(t, "POST", "/lobbies/"+lobbyID+"/messages", map[string]string{
		"user_id": userID, "message": "let me in",
	}, http.StatusBadRequest)
}

func TestTriviaAnswerEndpointStatusCodes(t *testing.T) {
	api := newTestAPI(testConfig())

	user := api.do(t, "POST", "/register", map[string]string{"username": "alice"}, http.StatusOK)
	userID := user["user_id"].(string)

	lobby := api.do(t, "POST", "/lobbies", map[string]any{"name": "Quiz", "max_humans": 4}, http.StatusOK)
	lobbyID := lobby["lobby_id"].(string)

	// No round is running, so a submission is a state conflict.
	api.do(t, "POST", "/lobbies/"+lobbyID+"/trivia-answer", map[string]any{
		"user_id": userID, "answer": 1,
	}, http.StatusConflict)

	api.do(t, "POST", "/lobbies/missing/trivia-answer", map[string]any{
		"user_id": userID, "answer": 1,
	}, http.StatusNotFound)
}

func TestBotEndpoints(t *testing.T) {
	api := newTestAPI(testConfig())

	lobby := api.do(t, "POST", "/lobbies", map[string]any{"name": "Bots", "max_humans": 4, "max_bots": 1}, http.StatusOK)
	lobbyID := lobby["lobby_id"].(string)

	added := api.do(t, "POST", "/lobbies/"+lobbyID+"/bots", map[string]string{"bot_name": "Comedian"}, http.StatusOK)
	if added["bot_count"].(float64) != 1 {
		t.Fatalf("unexpected add-bot response: %v", added)
	}

	api.do(t, "POST", "/lobbies/"+lobbyID+"/bots", map[string]string{"bot_name": "ChatBot"}, http.StatusBadRequest)
	api.do(t, "DELETE", "/lobbies/"+lobbyID+"/bots/ChatBot", nil, http.StatusNotFound)
	api.do(t, "DELETE", "/lobbies/"+lobbyID+"/bots/Comedian", nil, http.StatusOK)

	catalog := api.do(t, "GET", "/bots", nil, http.StatusOK)
	if bots := catalog["bots"].(map[string]any); len(bots) != len(botPersonas) {
		t.Fatalf("expected %d personas in the catalog, got %d", len(botPersonas), len(bots))
	}
}

func TestStatsEndpoint(t *testing.T) {
	api := newTestAPI(testConfig())

	for i := 0; i < 3; i++ {
		api.do(t, "POST", "/register", map[string]string{"username": fmt.Sprintf("user%d", i)}, http.StatusOK)
	}
	api.do(t, "POST", "/lobbies", map[string]any{"name": "Counted", "max_humans": 4}, http.StatusOK)

	stats := api.do(t, "GET", "/stats", nil, http.StatusOK)
	if stats["total_users"].(float64) != 3 || stats["total_lobbies"].(float64) != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}
