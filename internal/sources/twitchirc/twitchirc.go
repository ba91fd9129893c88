// Package twitchirc adapts a Twitch IRC channel to the pull-based adapter
// boundary. The IRC client pushes messages as they arrive; this adapter
// parks them in a capped buffer and each content poll drains it. An IRC
// channel has no end-of-stream signal, so this source never reports a
// dead-stream error; it stays active until the run stops.
package twitchirc

import (
	"context"
	"fmt"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/fetch"
	"github.com/nerrida/chatloom/internal/logging"
)

// maxBuffered bounds the parked messages between polls; past it the
// oldest are dropped.
const maxBuffered = 2048

// Adapter bridges one channel's IRC firehose to poll semantics.
type Adapter struct {
	channel string
	client  *twitch.Client

	mu       sync.Mutex
	buf      []chat.Message
	chatters map[string]struct{}
	dropped  int
	started  bool
}

var _ fetch.Adapter = (*Adapter)(nil)

// New builds an adapter reading #channel anonymously. Nothing connects
// until the first poll.
func New(channel string) *Adapter {
	a := &Adapter{
		channel:  channel,
		chatters: make(map[string]struct{}),
	}
	a.client = twitch.NewAnonymousClient()
	a.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		a.push(a.convert(msg))
	})
	a.client.OnConnect(func() {
		logging.Info("connected to twitch irc", "channel", channel)
	})
	a.client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		logging.Warn("twitch irc reconnecting", "channel", channel)
	})
	return a
}

func (a *Adapter) ID() string { return a.channel }

// FetchContent drains everything buffered since the last poll. since and
// recentIDs are ignored: IRC only ever pushes new messages, so there is
// nothing to re-read or skip.
func (a *Adapter) FetchContent(_ context.Context, _ time.Time, _ []string, limit int) ([]chat.Message, error) {
	a.ensureStarted()

	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.buf)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]chat.Message, n)
	copy(out, a.buf[:n])
	a.buf = append(a.buf[:0], a.buf[n:]...)
	if a.dropped > 0 {
		logging.Warn("twitch buffer overflow, oldest messages dropped", "channel", a.channel, "dropped", a.dropped)
		a.dropped = 0
	}
	return out, nil
}

// FetchMetadata reports the channel name and the count of distinct
// chatters seen since the previous metadata poll, as a viewer proxy. IRC
// carries no real viewer figure.
func (a *Adapter) FetchMetadata(_ context.Context) (fetch.Metadata, error) {
	a.ensureStarted()

	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.chatters)
	a.chatters = make(map[string]struct{})
	return fetch.Metadata{
		Title:   "Twitch: #" + a.channel,
		Viewers: n,
	}, nil
}

// Close disconnects the IRC client.
func (a *Adapter) Close() error {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return nil
	}
	return a.client.Disconnect()
}

func (a *Adapter) ensureStarted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	a.client.Join(a.channel)
	go func() {
		if err := a.client.Connect(); err != nil {
			logging.Error("twitch irc connection ended", "channel", a.channel, "error", err)
		}
	}()
}

func (a *Adapter) push(m chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buf) >= maxBuffered {
		a.buf = a.buf[1:]
		a.dropped++
	}
	a.buf = append(a.buf, m)
	a.chatters[m.Author.ID] = struct{}{}
}

func (a *Adapter) convert(msg twitch.PrivateMessage) chat.Message {
	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	name := msg.User.DisplayName
	if name == "" {
		name = msg.User.Name
	}
	m := chat.Message{
		ID:         msg.ID,
		SourceID:   a.channel,
		Author:     chat.Author{Name: name, ID: msg.User.ID},
		Role:       roleFromBadges(msg.User.Badges),
		Text:       msg.Message,
		OccurredAt: at,
	}
	for _, e := range msg.Emotes {
		m.Symbols = append(m.Symbols, chat.Symbol{
			Marker: e.Name,
			Image:  emoteURL(e.ID),
			Label:  e.Name,
		})
	}
	return m
}

func roleFromBadges(badges map[string]int) chat.Role {
	switch {
	case badges["broadcaster"] > 0:
		return chat.RoleOwner
	case badges["moderator"] > 0:
		return chat.RoleModerator
	case badges["subscriber"] > 0, badges["vip"] > 0:
		return chat.RoleMember
	default:
		return chat.RoleRegular
	}
}

func emoteURL(id string) string {
	return fmt.Sprintf("https://static-cdn.jtvnw.net/emoticons/v2/%s/default/dark/1.0", id)
}
