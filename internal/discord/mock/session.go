// Package mock provides test doubles for the Discord layer.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Sent records one channel message.
type Sent struct {
	ChannelID string
	Message   *discordgo.MessageSend
}

// Session records interaction responses and sent messages. It implements
// discord.Responder and discord.Sender.
type Session struct {
	mu sync.Mutex

	// Err is returned by every call when non-nil.
	Err error

	responses []*discordgo.InteractionResponse
	followUps []*discordgo.WebhookParams
	sent      []Sent
}

// InteractionRespond records the response and returns Err.
func (m *Session) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m.Err
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *Session) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followUps = append(m.followUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// ChannelMessageSendComplex records the message.
func (m *Session) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.sent = append(m.sent, Sent{ChannelID: channelID, Message: data})
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", len(m.sent)), ChannelID: channelID}, nil
}

// UserChannelCreate returns a DM channel with ID "dm-<recipientID>".
func (m *Session) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

// Responses returns a copy of the recorded interaction responses.
func (m *Session) Responses() []*discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), m.responses...)
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Session) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *Session) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.followUps) == 0 {
		return nil
	}
	return m.followUps[len(m.followUps)-1]
}

// Sent returns a copy of the recorded channel messages.
func (m *Session) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}
