package discord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/server-miyabi/internal/chat"
)

const (
	messageLimit   = 2000
	typingInterval = 8 * time.Second
	handleTimeout  = 2 * time.Minute
)

// MessageHandler is what the bot feeds inbound messages to.
type MessageHandler interface {
	ShouldRespond(msg chat.Inbound, isGroup bool) bool
	Handle(ctx context.Context, in chat.Inbound) (string, error)
}

// Bot relays Discord messages to the chat handler and posts replies.
type Bot struct {
	dg      *discordgo.Session
	handler MessageHandler
	ctx     context.Context
}

// StartBot connects to Discord and blocks until ctx is done.
func StartBot(ctx context.Context, token string, handler MessageHandler) error {
	if token == "" {
		return fmt.Errorf("discord token is empty")
	}
	b := &Bot{handler: handler, ctx: ctx}
	if err := b.run(ctx, token); err != nil {
		return fmt.Errorf("bot run error: %w", err)
	}
	return nil
}

func (b *Bot) run(ctx context.Context, token string) error {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.dg = dg

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	log.Println("[INFO] Shutdown signal received. Cleaning up...")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[INFO] Discord bot %s is running in %d guilds.", r.User.Username, len(r.Guilds))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	in := toInbound(s.State.User, m.Message)

	go func() {
		ctx, cancel := context.WithTimeout(b.ctx, handleTimeout)
		defer cancel()

		if b.handler.ShouldRespond(in, in.IsGroup) {
			done := make(chan struct{})
			defer close(done)
			go keepTyping(s, m.ChannelID, done)
		}

		reply, err := b.handler.Handle(ctx, in)
		if err != nil {
			log.Printf("[ERR] [CHAT] action=handle chat=%s err=%v", in.ConversationID, err)
			return
		}
		if reply == "" {
			return
		}
		for _, chunk := range splitMessage(reply, messageLimit) {
			if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
				log.Printf("[ERR] [CHAT] action=send chat=%s err=%v", m.ChannelID, err)
				return
			}
		}
	}()
}

// toInbound maps a Discord message to the transport-neutral form. Mentions of
// the bot are rewritten to @Name so the prompt reads naturally.
func toInbound(self *discordgo.User, m *discordgo.Message) chat.Inbound {
	text := m.Content
	mentioned := false
	if self != nil {
		for _, u := range m.Mentions {
			if u.ID == self.ID {
				mentioned = true
				break
			}
		}
		name := "@" + self.Username
		text = strings.ReplaceAll(text, "<@"+self.ID+">", name)
		text = strings.ReplaceAll(text, "<@!"+self.ID+">", name)
	}

	in := chat.Inbound{
		ID:             m.ID,
		ConversationID: m.ChannelID,
		Text:           text,
		IsGroup:        m.GuildID != "",
		Mentioned:      mentioned,
		At:             m.Timestamp,
	}
	if m.Author != nil {
		in.SenderID = m.Author.ID
		in.SenderName = m.Author.DisplayName()
	}
	return in
}

func splitMessage(msg string, limit int) []string {
	var result []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		result = append(result, strings.TrimSpace(msg[:cut]))
		msg = strings.TrimSpace(msg[cut:])
	}
	if msg != "" {
		result = append(result, msg)
	}
	return result
}

func keepTyping(s *discordgo.Session, channelID string, done <-chan struct{}) {
	_ = s.ChannelTyping(channelID)
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = s.ChannelTyping(channelID)
		}
	}
}
