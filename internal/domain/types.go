package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionID string
type UserID string
type MessageID string
type MediaID string

// Author is who wrote a message. There is no system author in the persisted model.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

func (a Author) Valid() bool {
	return a == AuthorUser || a == AuthorAssistant
}

// Mode selects the persona used for greetings and prompt framing.
type Mode string

const (
	ModeSupportive  Mode = "supportive"  // Validating, gentle
	ModeChallenging Mode = "challenging" // Pushes back, asks hard questions
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeSupportive, ModeChallenging}

var greetings = map[Mode]string{
	ModeSupportive:  "hey, i'm here. what's on your mind today?",
	ModeChallenging: "alright, let's get real. what are you avoiding right now?",
}

// Greeting returns the fixed greeting text of the mode.
func (m Mode) Greeting() string {
	if g, ok := greetings[m]; ok {
		return g
	}
	return greetings[ModeSupportive]
}

func (m Mode) Valid() bool {
	_, ok := greetings[m]
	return ok
}

// ParseMode accepts the canonical names plus a few short aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "supportive", "support", "soft":
		return ModeSupportive, nil
	case "challenging", "challenge", "tough":
		return ModeChallenging, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaLink  MediaKind = "link"
)

// NewID returns a random identifier used for sessions, messages and media.
func NewID() string {
	return uuid.NewString()
}

type Timestamp = time.Time
