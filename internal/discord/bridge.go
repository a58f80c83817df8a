package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/dicebot/internal/character"
	"github.com/MrWong99/dicebot/internal/chat"
)

// maxContent is Discord's message length limit.
const maxContent = 2000

// ChatSink stores bridged messages. [chat.MemStore] implements it.
type ChatSink interface {
	EnsureTab(ctx context.Context, id, name string) error
	Post(ctx context.Context, m chat.Message) (chat.Message, error)
}

// EventPublisher announces stored messages. [bus.Bus] implements it.
type EventPublisher interface {
	PublishInbound(ctx context.Context, ev chat.Event) error
}

// CharacterFinder maps Discord users to the characters they play.
type CharacterFinder interface {
	FindByPlayer(ctx context.Context, player string) (character.Character, error)
}

// Sender is the subset of [discordgo.Session] used to deliver messages.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Bridge moves messages between Discord channels and the chat store. Each
// channel is a chat tab; the channel's configured game system becomes the
// message tag.
type Bridge struct {
	chat   ChatSink
	events EventPublisher
	chars  CharacterFinder

	mu             sync.RWMutex
	sender         Sender
	selfID         string
	channelSystems map[string]string
	players        map[string]string
}

// NewBridge returns a bridge storing messages in sink and announcing them on
// events. chars may be nil, leaving speakers unresolved unless listed in
// players.
func NewBridge(sink ChatSink, events EventPublisher, chars CharacterFinder, channelSystems, players map[string]string) *Bridge {
	return &Bridge{
		chat:           sink,
		events:         events,
		chars:          chars,
		channelSystems: maps.Clone(channelSystems),
		players:        maps.Clone(players),
	}
}

// Attach sets the connection used for delivery and the bot's own user ID.
func (b *Bridge) Attach(s Sender, selfID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = s
	b.selfID = selfID
}

// SetChannelSystems replaces the channel to game-system mapping.
func (b *Bridge) SetChannelSystems(m map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channelSystems = maps.Clone(m)
}

// ChannelSystem returns the game system configured for channelID, or "".
func (b *Bridge) ChannelSystem(channelID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.channelSystems[channelID]
}

// OnMessageCreate stores a user message and publishes its event. Messages
// from bots are ignored.
func (b *Bridge) OnMessageCreate(ctx context.Context, m *discordgo.MessageCreate) error {
	if m.Author == nil || m.Author.Bot {
		return nil
	}
	b.mu.RLock()
	self := b.selfID
	b.mu.RUnlock()
	if m.Author.ID == self {
		return nil
	}

	if err := b.chat.EnsureTab(ctx, m.ChannelID, m.ChannelID); err != nil {
		return fmt.Errorf("discord: ensure tab %s: %w", m.ChannelID, err)
	}

	msg := chat.Message{
		ID:        m.ID,
		TabID:     m.ChannelID,
		Text:      m.Content,
		Tag:       b.ChannelSystem(m.ChannelID),
		From:      m.Author.ID,
		Name:      displayName(m.Message),
		Timestamp: m.Timestamp.UnixMilli(),
		SpeakerID: b.characterOf(ctx, m.Author.ID),
		FromSelf:  true,
	}
	for _, u := range m.Mentions {
		if id := b.characterOf(ctx, u.ID); id != "" {
			msg.TargetIDs = append(msg.TargetIDs, id)
		}
	}

	posted, err := b.chat.Post(ctx, msg)
	if err != nil {
		return fmt.Errorf("discord: store message %s: %w", m.ID, err)
	}
	if err := b.events.PublishInbound(ctx, chat.Event{MessageID: posted.ID}); err != nil {
		return fmt.Errorf("discord: publish message %s: %w", m.ID, err)
	}
	return nil
}

// characterOf returns the character ID the user speaks as, or "".
func (b *Bridge) characterOf(ctx context.Context, userID string) string {
	b.mu.RLock()
	id, ok := b.players[userID]
	b.mu.RUnlock()
	if ok {
		return id
	}
	if b.chars == nil {
		return ""
	}
	c, err := b.chars.FindByPlayer(ctx, userID)
	if err != nil {
		return ""
	}
	return c.ID
}

func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// Deliver sends a generated message to Discord. Secret results go to the
// originating user by direct message and the channel only learns that a
// secret roll happened. Results with recipients are sent to each of them
// directly.
func (b *Bridge) Deliver(ctx context.Context, m chat.Message) error {
	b.mu.RLock()
	sender := b.sender
	b.mu.RUnlock()
	if sender == nil {
		return errors.New("discord: bridge not attached")
	}

	// Result history is best effort.
	if _, err := b.chat.Post(ctx, m); err != nil {
		slog.Debug("discord: result not stored", "tab", m.TabID, "err", err)
	}

	content := formatResult(m)
	switch {
	case m.IsSecret():
		if err := sendDM(sender, m.OriginFrom, content); err != nil {
			return err
		}
		return sendChannel(sender, m.TabID, fmt.Sprintf("**%s**\n🎲 Secret roll", m.Name))
	case m.IsDirect():
		var errs []error
		for _, to := range m.To {
			errs = append(errs, sendDM(sender, to, content))
		}
		return errors.Join(errs...)
	default:
		return sendChannel(sender, m.TabID, content)
	}
}

func formatResult(m chat.Message) string {
	s := fmt.Sprintf("**%s**\n%s", m.Name, m.Text)
	if r := []rune(s); len(r) > maxContent {
		s = string(r[:maxContent-1]) + "…"
	}
	return s
}

func sendChannel(s Sender, channelID, content string) error {
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		return fmt.Errorf("discord: send to channel %s: %w", channelID, err)
	}
	return nil
}

func sendDM(s Sender, userID, content string) error {
	ch, err := s.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("discord: open DM with %s: %w", userID, err)
	}
	return sendChannel(s, ch.ID, content)
}
