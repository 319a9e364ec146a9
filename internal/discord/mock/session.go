// Package mock provides test doubles for the Discord poster.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Message is one recorded ChannelMessageSend call.
type Message struct {
	ChannelID string
	Content   string

	// Options is the number of request options passed with the call.
	Options int
}

// Sender records channel messages for test assertions.
type Sender struct {
	mu sync.Mutex

	// Sent records all ChannelMessageSend calls.
	Sent []Message

	// Err is returned by ChannelMessageSend when non-nil, allowing error
	// injection.
	Err error
}

// ChannelMessageSend records the message and returns a stub message or the
// configured error.
func (m *Sender) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, Message{ChannelID: channelID, Content: content, Options: len(options)})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: channelID, Content: content}, nil
}

// Last returns the most recently recorded message, or the zero value.
func (m *Sender) Last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return Message{}
	}
	return m.Sent[len(m.Sent)-1]
}

// Reset clears all recorded messages and errors.
func (m *Sender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
	m.Err = nil
}
