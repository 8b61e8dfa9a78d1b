package main

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is the inbound WebSocket frame.
type clientMessage struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	ReplyTo  string `json:"reply_to"`
	IsTyping bool   `json:"is_typing"`
}

// Client is one WebSocket connection. The same user may hold several.
type Client struct {
	conn     *websocket.Conn
	send     chan Message
	userID   string
	username string
}

// sendBufferSize must cover the registration burst (welcome, history replay,
// join notice) even if the write pump has not been scheduled yet, since the
// hub drops any client whose buffer will not accept a queued message.
func sendBufferSize(cfg *Config) int {
	return cfg.welcomeHistory + 16
}

// WebSocket handler that picks the hub based on :lobbyid. The user id in the
// path must resolve to a registered username before the upgrade happens.
func serveWS(cfg *Config, users *Directory, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		lobbyID := ps.ByName("lobbyid")

		username, err := users.ResolveUsername(ps.ByName("userid"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		hub := lm.Hub(lobbyID)
		if hub == nil {
			http.Error(w, errLobbyNotFound.Error(), http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "WS: Upgrade error: %v", err)
			return
		}

		users.Touch(ps.ByName("userid"))

		client := &Client{
			conn:     conn,
			send:     make(chan Message, sendBufferSize(cfg)),
			userID:   ps.ByName("userid"),
			username: username,
		}

		hub.Register(client)

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *LobbyHub) {
	defer func() {
		h.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "ping":
			select {
			case c.send <- newMessage(msgTypePong, "system", ""):
			default:
			}
		case "typing":
			h.RelayTyping(c, msg.IsTyping)
		default:
			if trimMessage(msg.Message) == "" {
				continue
			}
			h.Chat(inboundChat{
				client:  c,
				text:    msg.Message,
				replyTo: msg.ReplyTo,
			})
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
