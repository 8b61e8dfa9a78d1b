package main

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxMessageLength = 1000

func trimMessage(s string) string {
	return strings.TrimSpace(s)
}

// Message types on the wire.
const (
	msgTypeUser         = "user"
	msgTypeSystem       = "system"
	msgTypeBot          = "bot"
	msgTypeTrivia       = "trivia"
	msgTypeTriviaResult = "trivia_result"
	msgTypeTyping       = "typing"
	msgTypePong         = "pong"
	msgTypeError        = "error"
)

const triviaHost = "🎯 TriviaBot"

// Message is a single lobby event: chat, join/leave notice, bot reply, or
// trivia traffic. Immutable once appended to a lobby's log.
type Message struct {
	MessageID      string        `json:"message_id"`
	Username       string        `json:"username"`
	Type           string        `json:"type"`
	Message        string        `json:"message"`
	Timestamp      time.Time     `json:"timestamp"`
	ReplyTo        string        `json:"reply_to,omitempty"`
	RepliedMessage *Message      `json:"replied_message,omitempty"`
	Avatar         string        `json:"avatar,omitempty"`
	IsTyping       bool          `json:"is_typing,omitempty"`
	TriviaData     *TriviaData   `json:"trivia_data,omitempty"`
	TriviaResult   *TriviaResult `json:"trivia_result,omitempty"`
}

func newMessage(msgType, username, body string) Message {
	return Message{
		MessageID: uuid.New().String(),
		Username:  username,
		Type:      msgType,
		Message:   body,
		Timestamp: time.Now(),
	}
}

func newSystemMessage(body string) Message {
	return newMessage(msgTypeSystem, "system", body)
}

// messageLog is a bounded, append-only event sequence for one lobby. It is
// not safe for concurrent use; the owning hub's lock guards it.
type messageLog struct {
	entries []Message
	limit   int
}

func newMessageLog(limit int) messageLog {
	if limit < 1 {
		limit = 1000
	}
	return messageLog{limit: limit}
}

func (l *messageLog) append(m Message) {
	l.entries = append(l.entries, m)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

func (l *messageLog) len() int {
	return len(l.entries)
}

// find returns the logged message with the given id, or nil.
func (l *messageLog) find(messageID string) *Message {
	for i := range l.entries {
		if l.entries[i].MessageID == messageID {
			return &l.entries[i]
		}
	}
	return nil
}

// recent returns up to limit messages, in log order. The offset counts back
// from the newest entry, so offset=limit pages one window further into the
// past ("load older" semantics).
func (l *messageLog) recent(limit, offset int) []Message {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	end := len(l.entries) - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]Message, end-start)
	copy(out, l.entries[start:end])
	return out
}

// tail returns the newest n messages in log order.
func (l *messageLog) tail(n int) []Message {
	return l.recent(n, 0)
}
