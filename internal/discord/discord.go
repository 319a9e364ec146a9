// Package discord posts scene lines to a Discord text channel. It owns the
// discordgo.Session lifecycle and renders each line with Discord markdown:
// speaker names in bold, stage directions in italics.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/verona/internal/scene"
)

// maxMessageLen is Discord's limit for a plain message body.
const maxMessageLen = 2000

// Config holds Discord poster configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// ChannelID is the text channel every line is posted to.
	ChannelID string
}

// Sender is the subset of [discordgo.Session] the poster needs.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Compile-time check.
var _ Sender = (*discordgo.Session)(nil)

// Poster publishes scene lines to one channel. It is safe for concurrent use.
type Poster struct {
	sender    Sender
	channelID string

	mu        sync.Mutex
	session   *discordgo.Session
	closeOnce sync.Once
}

// Open creates a session, connects to the gateway, and returns a [Poster]
// for cfg.ChannelID. Call [Poster.Close] when done.
func Open(_ context.Context, cfg Config) (*Poster, error) {
	if cfg.ChannelID == "" {
		return nil, errors.New("discord: channel id is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	p := NewPoster(session, cfg.ChannelID)
	p.session = session
	slog.Info("discord poster connected", "channel_id", cfg.ChannelID)
	return p, nil
}

// NewPoster returns a [Poster] that sends through s. Used with a mock sender
// in tests; [Open] wires a real session.
func NewPoster(s Sender, channelID string) *Poster {
	return &Poster{sender: s, channelID: channelID}
}

// Name identifies the poster in logs and metrics.
func (p *Poster) Name() string { return "discord" }

// Publish posts line to the channel. The request is bound to ctx.
func (p *Poster) Publish(ctx context.Context, line scene.Line) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.sender.ChannelMessageSend(p.channelID, Format(line), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: post to %s: %w", p.channelID, err)
	}
	return nil
}

// Close disconnects the session opened by [Open]. It is a no-op for posters
// built with [NewPoster] and safe to call more than once.
func (p *Poster) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.session == nil {
			return
		}
		if err := p.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord poster closed")
	})
	return closeErr
}

// Format renders line as a Discord message: "**ROMEO:** text" for dialogue
// and "*Enter ROMEO and JULIET*" for stage directions. Markdown in the
// sentence is escaped and the result is cut to Discord's length limit.
func Format(line scene.Line) string {
	var msg string
	if line.IsDirection() {
		msg = "*" + escape(line.String()) + "*"
	} else {
		msg = "**" + escape(strings.ToUpper(line.Speaker)) + ":** " + escape(line.Text)
	}
	if r := []rune(msg); len(r) > maxMessageLen {
		msg = string(r[:maxMessageLen-1]) + "…"
	}
	return msg
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
