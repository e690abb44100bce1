package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Billy-Davies-2/gamefilter/internal/engine"
	"github.com/Billy-Davies-2/gamefilter/internal/logger"
	"github.com/Billy-Davies-2/gamefilter/internal/service"
)

// Codes for failures that are not coordinator rejections
const (
	CodeNotFound        = "NotFound"
	CodeBadRequest      = "BadRequest"
	CodeUnauthenticated = "Unauthenticated"
	CodeRateLimited     = "RateLimited"
	CodeInternal        = "Internal"
)

var messages = map[engine.Reason]string{
	engine.ReasonSessionComplete:     "This draft is already complete.",
	engine.ReasonSessionCancelled:    "This draft was cancelled.",
	engine.ReasonGameEnded:           "The game has ended.",
	engine.ReasonNotYourTurn:         "It's not your turn to pick.",
	engine.ReasonNoSlotAvailable:     "You have no open roster slots.",
	engine.ReasonInvalidSlot:         "That roster slot can't be used right now.",
	engine.ReasonEntityAlreadyPicked: "That pick is already taken.",
	engine.ReasonAlreadySubmitted:    "You already submitted a card this round.",
	engine.ReasonNotHost:             "Only the host can do that.",
	engine.ReasonConflict:            "Someone else acted at the same time. Try again.",
	engine.ReasonUpstreamUnavailable: "The service is temporarily unavailable. Try again.",
	engine.ReasonRematchUnavailable:  "A rematch can't be started right now.",
	engine.ReasonNotSeated:           "You don't have a seat in this draft.",
	engine.ReasonSeatTaken:           "That seat is already taken.",
	engine.ReasonSessionStarted:      "The draft has already started.",
	engine.ReasonRoomFull:            "This room is full.",
	engine.ReasonNotParticipant:      "You're not in this room.",
	engine.ReasonInvalidAction:       "That action isn't allowed.",
}

// Message is the short human text shown for a rejection reason
func Message(r engine.Reason) string {
	if m, ok := messages[r]; ok {
		return m
	}
	return "Something went wrong."
}

// ErrorBody is the JSON error envelope of every API failure
type ErrorBody struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func reasonStatus(r engine.Reason) int {
	switch r {
	case engine.ReasonInvalidAction:
		return http.StatusBadRequest
	case engine.ReasonNotHost, engine.ReasonNotSeated, engine.ReasonNotParticipant:
		return http.StatusForbidden
	case engine.ReasonConflict:
		return http.StatusConflict
	case engine.ReasonUpstreamUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusUnprocessableEntity
}

var (
	errMalformed       = errors.New("malformed message")
	errUnauthenticated = errors.New("unauthenticated")
	errRateLimited     = errors.New("rate limited")
)

// classify maps service errors onto an HTTP status and error body
func classify(err error) (int, ErrorBody) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Reason: CodeNotFound, Message: "Not found."}
	case errors.Is(err, errMalformed):
		return http.StatusBadRequest, ErrorBody{Reason: CodeBadRequest, Message: "Malformed message."}
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, ErrorBody{Reason: CodeUnauthenticated, Message: "Sign in to play online."}
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, ErrorBody{Reason: CodeRateLimited, Message: "Slow down."}
	}
	if r, ok := engine.ReasonOf(err); ok {
		if r == engine.ReasonUpstreamUnavailable {
			logger.Warn("Upstream unavailable", "error", err)
		}
		return reasonStatus(r), ErrorBody{Reason: string(r), Message: Message(r)}
	}
	if errors.Is(err, engine.ErrCorruptState) {
		logger.Error("Corrupt session state", "error", err)
	} else {
		logger.Error("Unhandled request error", "error", err)
	}
	return http.StatusInternalServerError, ErrorBody{Reason: CodeInternal, Message: "Internal error."}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Reason: CodeBadRequest, Message: msg})
}

func unauthenticated(w http.ResponseWriter) {
	writeError(w, errUnauthenticated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}
