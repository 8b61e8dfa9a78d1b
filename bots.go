// Bot replies. Each human chat message may schedule one delayed bot reply;
// the scheduler goroutine sleeps out a think delay, re-acquires the hub lock,
// and re-validates before speaking. Reply text comes from an optional
// external generator with a rule-based fallback that always produces
// something.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

type botPersona struct {
	name        string
	personality string
	avatar      string
	description string
}

var botPersonas = map[string]botPersona{
	"ChatBot": {
		name:        "ChatBot",
		personality: "friendly and helpful chat companion who loves casual conversation",
		avatar:      "🤖",
		description: "Your friendly neighborhood chatbot",
	},
	"QuizMaster": {
		name:        "QuizMaster",
		personality: "enthusiastic trivia expert and game show host",
		avatar:      "🎯",
		description: "Trivia enthusiast and quiz master",
	},
	"Cheerleader": {
		name:        "Cheerleader",
		personality: "upbeat and encouraging supporter who motivates everyone",
		avatar:      "⭐",
		description: "Your biggest supporter and motivator",
	},
	"Philosopher": {
		name:        "Philosopher",
		personality: "thoughtful and wise conversationalist who ponders life",
		avatar:      "🧠",
		description: "Deep thinker and philosophical companion",
	},
	"Comedian": {
		name:        "Comedian",
		personality: "funny and witty entertainer who loves jokes and humor",
		avatar:      "😄",
		description: "Comedy expert and joke teller",
	},
}

// AddBot adds a persona to the lobby roster. Unknown names fall back to
// ChatBot before the duplicate check runs.
func (h *LobbyHub) AddBot(requested string) (botPersona, int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.purged {
		return botPersona{}, 0, errLobbyNotFound
	}

	_, maxBots := h.manager.info.LobbyCapacity(h.id)
	if len(h.bots) >= maxBots {
		return botPersona{}, 0, errBotLimit
	}

	persona, ok := botPersonas[requested]
	if !ok {
		persona = botPersonas["ChatBot"]
	}

	for _, name := range h.bots {
		if name == persona.name {
			return botPersona{}, 0, errBotPresent
		}
	}

	h.bots = append(h.bots, persona.name)
	h.lastActive = time.Now()

	joined := newSystemMessage(fmt.Sprintf(
		"%s **%s** has joined the chat!\n_%s_",
		persona.avatar, persona.name, persona.description,
	))
	h.log.append(joined)
	h.broadcastLocked(joined)

	return persona, len(h.bots), nil
}

// RemoveBot removes a persona from the roster.
func (h *LobbyHub) RemoveBot(name string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.purged {
		return 0, errLobbyNotFound
	}

	for i, bot := range h.bots {
		if bot != name {
			continue
		}
		h.bots = append(h.bots[:i], h.bots[i+1:]...)
		h.lastActive = time.Now()

		persona := botPersonas[name]
		left := newSystemMessage(fmt.Sprintf("%s **%s** has left the chat.", persona.avatar, persona.name))
		h.log.append(left)
		h.broadcastLocked(left)

		return len(h.bots), nil
	}
	return 0, errBotUnknown
}

// Roster returns a copy of the lobby's bot names.
func (h *LobbyHub) Roster() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, len(h.bots))
	copy(out, h.bots)
	return out
}

// scheduleBotReplyLocked decides whether a human message gets a bot reply.
// Some messages are skipped at random so the bots do not answer everything.
func (h *LobbyHub) scheduleBotReplyLocked(text, username string) {
	if len(h.bots) == 0 {
		return
	}
	if rand.Float64() < h.cfg.botSkipChance {
		return
	}
	go h.deliverBotReply(text, username)
}

func (h *LobbyHub) deliverBotReply(text, username string) {
	delay := h.cfg.botDelayMin
	if h.cfg.botDelayMax > h.cfg.botDelayMin {
		delay += time.Duration(rand.Int63n(int64(h.cfg.botDelayMax - h.cfg.botDelayMin)))
	}
	time.Sleep(delay)

	h.mu.Lock()
	if h.purged || len(h.bots) == 0 {
		h.mu.Unlock()
		return
	}
	name := h.pickResponderLocked()
	persona := botPersonas[name]
	context := h.botContextLocked(name)
	h.mu.Unlock()

	reply := h.generateReply(persona, text, username, context)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.purged {
		return
	}

	m := newMessage(msgTypeBot, persona.name, reply)
	m.Avatar = persona.avatar
	h.lastActive = time.Now()
	h.log.append(m)
	h.broadcastLocked(m)
}

// pickResponderLocked prefers bots that have not spoken in the last three
// logged messages.
func (h *LobbyHub) pickResponderLocked() string {
	recentSpeakers := make(map[string]bool)
	for _, m := range h.log.tail(3) {
		if m.Type == msgTypeBot {
			recentSpeakers[m.Username] = true
		}
	}

	available := make([]string, 0, len(h.bots))
	for _, name := range h.bots {
		if !recentSpeakers[name] {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		available = h.bots
	}

	return available[rand.Intn(len(available))]
}

// botContextLocked gathers the last few chat lines for reply generation,
// excluding the responding bot's own messages.
func (h *LobbyHub) botContextLocked(exclude string) []string {
	var context []string
	for _, m := range h.log.tail(5) {
		if m.Type != msgTypeUser && m.Type != msgTypeBot {
			continue
		}
		if m.Username == exclude {
			continue
		}
		context = append(context, fmt.Sprintf("%s: %s", m.Username, m.Message))
	}
	return context
}

func (h *LobbyHub) generateReply(persona botPersona, text, username string, context []string) string {
	if gen := h.manager.generator; gen != nil {
		reply, err := gen.Generate(persona, text, username, context)
		if err != nil {
			logf(h.cfg, "BOT: Generator error for %s: %v", persona.name, err)
		} else if usableReply(reply) {
			return truncateReply(reply)
		}
	}
	return ruleReply(persona, text, context, username)
}

func usableReply(reply string) bool {
	reply = strings.TrimSpace(reply)
	if len(reply) < 3 {
		return false
	}
	switch strings.ToLower(reply) {
	case "yes", "no", "ok":
		return false
	}
	return true
}

func truncateReply(reply string) string {
	if len(reply) > 200 {
		return reply[:200] + "..."
	}
	return reply
}

func pickReply(options []string) string {
	return options[rand.Intn(len(options))]
}

// ruleReply is the always-available reply generator. It keys off direct
// triggers first, then the persona's phrase bank, widened when the recent
// conversation matches known topics.
func ruleReply(persona botPersona, userMessage string, context []string, username string) string {
	messageLower := strings.ToLower(userMessage)

	var contextKeywords []string
	if len(context) > 0 {
		recent := context
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		recentText := strings.ToLower(strings.Join(recent, " "))
		if containsAny(recentText, "trivia", "question", "quiz", "answer") {
			contextKeywords = append(contextKeywords, "trivia")
		}
		if containsAny(recentText, "game", "play", "fun", "round") {
			contextKeywords = append(contextKeywords, "gaming")
		}
		if containsAny(recentText, "score", "win", "lose", "winner") {
			contextKeywords = append(contextKeywords, "competition")
		}
		if containsAny(recentText, "hello", "hi", "hey", "welcome") {
			contextKeywords = append(contextKeywords, "greeting")
		}
	}

	if containsAny(messageLower, "hello", "hi", "hey", "@"+strings.ToLower(persona.name)) {
		return pickReply([]string{
			fmt.Sprintf("Hey %s! 👋 Great to see you here!", username),
			fmt.Sprintf("Hi there %s! How's it going? 😊", username),
			fmt.Sprintf("Hello %s! Welcome to the chat! 🎉", username),
			fmt.Sprintf("Hey %s! Ready for some fun conversation? ✨", username),
		})
	}

	if containsAny(messageLower, "bye", "goodbye", "leaving", "see you") {
		return pickReply([]string{
			fmt.Sprintf("Sad to see you go, %s! Come back soon! 👋", username),
			fmt.Sprintf("Bye %s! It was great chatting with you! ✨", username),
			fmt.Sprintf("See you later %s! Take care! 🌟", username),
			fmt.Sprintf("Goodbye %s! Hope to see you again soon! 💫", username),
		})
	}

	triviaContext := false
	for _, kw := range contextKeywords {
		if kw == "trivia" {
			triviaContext = true
		}
	}

	var responses []string
	switch {
	case strings.Contains(persona.personality, "cheerleader") || strings.Contains(persona.personality, "encouraging"):
		responses = []string{
			fmt.Sprintf("You're doing amazing, %s! Keep it up! 🌟", username),
			"This energy is incredible! I love being here with you all! 💪",
			fmt.Sprintf("You all rock! %s, you're especially awesome! 🎉", username),
			fmt.Sprintf("Such smart people in here! %s, you inspire me! 🚀", username),
			fmt.Sprintf("Woohoo! %s, you're bringing such good vibes! ✨", username),
		}
		if triviaContext {
			responses = append(responses,
				fmt.Sprintf("Trivia time is the best time! Go %s, you've got this! 🎯", username),
				fmt.Sprintf("I know you'll ace these questions, %s! 🏆", username),
				fmt.Sprintf("Smart cookies in the house! Show off those brains, %s! 🧠✨", username),
			)
		}
	case strings.Contains(persona.personality, "philosopher") || strings.Contains(persona.personality, "wise"):
		responses = []string{
			fmt.Sprintf("Interesting perspective, %s. It makes me think about the nature of conversation... 🤔", username),
			fmt.Sprintf("You know %s, each message reveals something profound about human connection.", username),
			fmt.Sprintf("In this digital space, %s, we create real bonds. How wonderful! 💭", username),
			fmt.Sprintf("That's thought-provoking, %s. I ponder the deeper meaning behind our words...", username),
			fmt.Sprintf("Fascinating insight, %s. Every question opens doorways to understanding. 🌅", username),
		}
		if triviaContext {
			responses = append(responses,
				fmt.Sprintf("Trivia reveals the vast tapestry of human knowledge, doesn't it %s?", username),
				fmt.Sprintf("Each question is a key to unlock memories and learning, %s. Intriguing! 🗝️", username),
				fmt.Sprintf("Competition brings out our desire for growth, %s. How beautiful!", username),
			)
		}
	case strings.Contains(persona.personality, "funny") || strings.Contains(persona.personality, "witty"):
		responses = []string{
			fmt.Sprintf("Haha %s, you know what they say... actually, I forgot what they say! 😄", username),
			fmt.Sprintf("That reminds me of a joke, %s! Why don't scientists trust atoms? Because they make up everything! 🤣", username),
			fmt.Sprintf("You're funnier than my programming, %s! And that's saying something! 😂", username),
			fmt.Sprintf("I'd tell you a joke about pizza, %s, but it's probably too cheesy! 🍕😄", username),
			fmt.Sprintf("Knock knock, %s! Who's there? A bot who loves bad jokes! 🤖😄", username),
		}
		if triviaContext {
			responses = append(responses,
				"Trivia night! My favorite! Though I usually bomb... get it? 💣😄",
				fmt.Sprintf("Ready for some brain teasers, %s? Mine's already twisted! 🧠😂", username),
				"Quiz time! I hope the questions aren't as confusing as my jokes! 🎭",
			)
		}
	case strings.Contains(persona.personality, "expert") || strings.Contains(persona.personality, "quiz"):
		responses = []string{
			fmt.Sprintf("That's fascinating, %s! Did you know that topic connects to some interesting trivia? 🧠", username),
			fmt.Sprintf("Great point, %s! Here's a fun fact that might interest you... 📚", username),
			fmt.Sprintf("You're right, %s! That reminds me of a challenging quiz question I once heard! 🎓", username),
			fmt.Sprintf("Excellent observation, %s! Knowledge sharing is what makes chat great! 🌟", username),
			fmt.Sprintf("Intriguing, %s! That could definitely make for a great trivia category! 🎯", username),
		}
	default:
		responses = []string{
			fmt.Sprintf("That's really cool, %s! Tell me more about that! 😊", username),
			fmt.Sprintf("I'm enjoying this conversation so much, %s! What's next? 🤖", username),
			fmt.Sprintf("You make this lobby such a fun place, %s! 🎉", username),
			fmt.Sprintf("Great point, %s! I love learning from everyone here! 📝", username),
			fmt.Sprintf("This chat is getting interesting, %s! Keep it going! 💬", username),
		}
	}

	if strings.Contains(userMessage, "?") {
		return pickReply([]string{
			fmt.Sprintf("Great question, %s! Let me think... 🤔 %s", username, pickReply(responses)),
			fmt.Sprintf("You always ask the interesting ones, %s! %s", username, pickReply(responses)),
			fmt.Sprintf("Hmm, %s, that's worth pondering! %s", username, pickReply(responses)),
		})
	}

	return pickReply(responses)
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// replyGenerator produces bot reply text from an external model.
type replyGenerator interface {
	Generate(persona botPersona, userMessage, username string, context []string) (string, error)
}

// ollamaGenerator talks to a local Ollama server.
type ollamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

func newOllamaGenerator(baseURL string) *ollamaGenerator {
	return &ollamaGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   "llama2:7b",
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (g *ollamaGenerator) Generate(persona botPersona, userMessage, username string, context []string) (string, error) {
	system := fmt.Sprintf(
		"You are %s, a %s in a group chat. Keep responses conversational and brief (1-2 sentences).",
		persona.name, persona.personality,
	)
	if len(context) > 2 {
		context = context[len(context)-2:]
	}
	if len(context) > 0 {
		system += "\n\nRecent conversation:\n" + strings.Join(context, "\n")
	}

	payload := map[string]any{
		"model":  g.model,
		"prompt": fmt.Sprintf("%s\n\nUser message: %s\n\nResponse:", system, userMessage),
		"stream": false,
		"options": map[string]any{
			"temperature": 0.7,
			"top_p":       0.9,
			"num_predict": 100,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Post(g.baseURL+"/api/generate", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	return strings.TrimSpace(out.Response), nil
}
