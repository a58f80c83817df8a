// Package chat models the chat channels the dice bot listens to: tabs that
// hold an ordered list of messages, and the events announcing new ones.
package chat

import (
	"slices"
	"strings"
)

// Message is one chat line.
type Message struct {
	ID    string
	TabID string
	Text  string

	// Tag is the game-system id for player messages, or a space-separated
	// list of markers such as "system dicebot secret" for generated ones.
	Tag string

	// From is the sender's user id; OriginFrom is set on generated messages
	// to the user whose message caused them.
	From       string
	OriginFrom string

	// To restricts the recipients. Empty means everyone in the tab.
	To []string

	// Name is the display name shown next to the message.
	Name string

	// Timestamp orders messages within a tab, in milliseconds.
	Timestamp int64

	// SpeakerID is the id of the character the sender speaks as.
	SpeakerID string

	// TargetIDs are the characters the message addresses.
	TargetIDs []string

	// FromSelf is set when this process accepted the message from a local
	// user, as opposed to replaying it from elsewhere.
	FromSelf bool

	// System marks messages generated by the bot itself.
	System bool
}

// HasMarker reports whether the space-separated Tag contains marker.
func (m *Message) HasMarker(marker string) bool {
	return slices.Contains(strings.Fields(m.Tag), marker)
}

// IsSystem reports whether m was generated rather than typed by a user.
func (m *Message) IsSystem() bool {
	return m.System || m.HasMarker("system")
}

// IsSecret reports whether m carries a secret roll.
func (m *Message) IsSecret() bool {
	return m.HasMarker("secret")
}

// IsDirect reports whether m is restricted to a set of recipients.
func (m *Message) IsDirect() bool {
	return len(m.To) > 0
}

func (m Message) clone() Message {
	m.To = slices.Clone(m.To)
	m.TargetIDs = slices.Clone(m.TargetIDs)
	return m
}

// Event announces that a message was sent.
type Event struct {
	MessageID string
}
