// Trivia rounds. A round is triggered by human message volume, runs on a
// fixed deadline, and ends by scoring whatever answers arrived in time. All
// round state lives on the hub and is guarded by the hub lock; the deadline
// goroutine re-validates against the purged flag after every sleep.

package main

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type triviaQuestion struct {
	question string
	options  []string
	correct  int
}

// TriviaData is the question payload attached to a trivia message. The
// correct index is deliberately absent.
type TriviaData struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"time_limit"`
	TriviaID  string   `json:"trivia_id"`
}

// TriviaResult is the scoring payload attached to a trivia_result message.
type TriviaResult struct {
	Winners            []string       `json:"winners"`
	CorrectAnswerIndex int            `json:"correct_answer_index"`
	CorrectAnswerText  string         `json:"correct_answer_text"`
	TotalParticipants  int            `json:"total_participants"`
	AllAnswers         map[string]int `json:"all_answers"`
}

var triviaQuestions = []triviaQuestion{
	{"What is the capital of France?", []string{"London", "Berlin", "Paris", "Madrid"}, 2},
	{"Which planet is closest to the Sun?", []string{"Venus", "Mercury", "Earth", "Mars"}, 1},
	{"What is 15 + 27?", []string{"41", "42", "43", "44"}, 1},
	{"Who painted the Mona Lisa?", []string{"Van Gogh", "Picasso", "Da Vinci", "Monet"}, 2},
	{"What is the largest ocean?", []string{"Atlantic", "Indian", "Arctic", "Pacific"}, 3},
	{"How many continents are there?", []string{"5", "6", "7", "8"}, 2},
	{"What year did World War 2 end?", []string{"1944", "1945", "1946", "1947"}, 1},
	{"What is the fastest land animal?", []string{"Lion", "Cheetah", "Leopard", "Tiger"}, 1},
	{"Which gas makes up most of Earth's atmosphere?", []string{"Oxygen", "Carbon dioxide", "Nitrogen", "Hydrogen"}, 2},
	{"Who wrote 'Romeo and Juliet'?", []string{"Charles Dickens", "William Shakespeare", "Mark Twain", "Jane Austen"}, 1},
	{"What is the chemical symbol for gold?", []string{"Go", "Gd", "Au", "Ag"}, 2},
	{"How many sides does a hexagon have?", []string{"5", "6", "7", "8"}, 1},
	{"Which country invented pizza?", []string{"France", "Italy", "Greece", "Spain"}, 1},
	{"What is the smallest prime number?", []string{"0", "1", "2", "3"}, 2},
	{"Which organ pumps blood in the human body?", []string{"Brain", "Heart", "Liver", "Lungs"}, 1},
}

// maybeStartTriviaLocked arms a round when the human message count crosses
// the interval, at least two users are present, and no round is running.
func (h *LobbyHub) maybeStartTriviaLocked() {
	if h.triviaActive {
		return
	}
	if len(h.presence) < 2 {
		return
	}
	if h.msgCount%h.cfg.triviaInterval != 0 {
		return
	}

	h.triviaActive = true
	h.triviaQuestion = triviaQuestions[rand.Intn(len(triviaQuestions))]
	h.triviaAnswers = make(map[string]int)

	announcement := newMessage(msgTypeSystem, triviaHost, "🎊 TRIVIA TIME! Get ready for a question...")
	h.log.append(announcement)
	h.broadcastLocked(announcement)

	go h.runTriviaRound(h.triviaQuestion)

	logf(h.cfg, "TRIVIA: Round started in lobby %s", h.id)
}

// runTriviaRound waits out the warmup pause, publishes the question, then
// waits out the answer window and scores the round.
func (h *LobbyHub) runTriviaRound(q triviaQuestion) {
	time.Sleep(h.cfg.triviaWarmup)

	h.mu.Lock()
	if h.purged {
		h.mu.Unlock()
		return
	}

	m := newMessage(msgTypeTrivia, triviaHost, fmt.Sprintf(
		"⏰ **%s**\n\nYou have %d seconds to answer!",
		q.question, int(h.cfg.triviaDuration.Seconds()),
	))
	m.TriviaData = &TriviaData{
		Question:  q.question,
		Options:   q.options,
		TimeLimit: int(h.cfg.triviaDuration.Seconds()),
		TriviaID:  uuid.New().String()[:8],
	}
	h.log.append(m)
	h.broadcastLocked(m)
	h.mu.Unlock()

	time.Sleep(h.cfg.triviaDuration)
	h.endTriviaRound(q)
}

func (h *LobbyHub) endTriviaRound(q triviaQuestion) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.purged {
		return
	}

	answers := h.triviaAnswers
	h.triviaActive = false
	h.triviaAnswers = nil

	winners := make([]string, 0, len(answers))
	for username, answer := range answers {
		if answer == q.correct {
			winners = append(winners, username)
		}
	}
	sort.Strings(winners)

	correctText := q.options[q.correct]

	var body string
	switch {
	case len(winners) == 1:
		body = fmt.Sprintf(
			"🎉 **CORRECT!**\n\n✅ Answer: **%s**\n🏆 Winner: **%s**\n👥 Participants: %d",
			correctText, winners[0], len(answers),
		)
	case len(winners) > 1:
		body = fmt.Sprintf(
			"🎉 **MULTIPLE WINNERS!**\n\n✅ Answer: **%s**\n🏆 Winners: **%s**\n👥 Participants: %d",
			correctText, strings.Join(winners, ", "), len(answers),
		)
	default:
		body = fmt.Sprintf(
			"⏰ **TIME'S UP!**\n\n✅ Correct answer: **%s**\n😅 No winners this time!\n👥 Participants: %d",
			correctText, len(answers),
		)
	}

	result := newMessage(msgTypeTriviaResult, triviaHost, body)
	result.TriviaResult = &TriviaResult{
		Winners:            winners,
		CorrectAnswerIndex: q.correct,
		CorrectAnswerText:  correctText,
		TotalParticipants:  len(answers),
		AllAnswers:         answers,
	}
	h.log.append(result)
	h.broadcastLocked(result)

	logf(h.cfg, "TRIVIA: Round ended in lobby %s with %d participant(s)", h.id, len(answers))
}

// SubmitAnswer records one user's answer for the active round. A later
// submission from the same user overwrites the earlier one. The confirmation
// broadcast never reveals which option was picked.
func (h *LobbyHub) SubmitAnswer(username string, answer int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.purged {
		return 0, errLobbyNotFound
	}
	if !h.triviaActive {
		return 0, errNoActiveTrivia
	}
	if answer < 0 || answer >= len(h.triviaQuestion.options) {
		return 0, errInvalidAnswer
	}

	h.triviaAnswers[username] = answer
	h.lastActive = time.Now()

	confirmation := newMessage(msgTypeSystem, triviaHost, fmt.Sprintf("✅ **%s** submitted their answer!", username))
	h.log.append(confirmation)
	h.broadcastLocked(confirmation)

	return len(h.triviaAnswers), nil
}
