/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Not-found failures. Surfaced to the caller, never fatal to the hub.
var (
	errUserNotFound  = errors.New("user not found")
	errLobbyNotFound = errors.New("lobby not found")
	errReplyNotFound = errors.New("message to reply to not found")
	errBotUnknown    = errors.New("bot is not in this lobby")
)

// Validation failures. Rejected before any state is mutated.
var (
	errUsernameLength = errors.New("username must be between 2 and 20 characters")
	errUsernameTaken  = errors.New("username already taken")
	errMessageEmpty   = errors.New("message cannot be empty")
	errMessageTooLong = errors.New("message too long (max 1000 characters)")
	errInvalidAnswer  = errors.New("answer index out of range")
	errLobbyFull      = errors.New("lobby is full")
	errLobbyPrivate   = errors.New("lobby is private, an invite code is required")
	errNotMember      = errors.New("user not in lobby")
	errBotLimit       = errors.New("maximum bots reached")
	errBotPresent     = errors.New("bot is already in this lobby")
)

// State conflicts.
var (
	errNoActiveTrivia = errors.New("no active trivia round")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
