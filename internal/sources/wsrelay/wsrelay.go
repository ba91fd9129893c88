// Package wsrelay follows one chat room on a websocket relay that streams
// JSON envelopes: a join request goes up, then message/info/error
// envelopes come down. Messages park in a capped buffer drained by each
// content poll. The relay reporting an unknown or closed room is terminal;
// everything else reconnects with backoff.
package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/fetch"
	"github.com/nerrida/chatloom/internal/logging"
)

const (
	maxBuffered      = 2048
	handshakeTimeout = 10 * time.Second
	maxBackoff       = 30 * time.Second
)

var errRoomGone = errors.New("room not found")

type joinRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type envelope struct {
	Type    string       `json:"type"`
	Message *wireMessage `json:"message,omitempty"`
	Info    *roomInfo    `json:"info,omitempty"`
	Error   *wireError   `json:"error,omitempty"`
}

type wireMessage struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	AuthorID string `json:"author_id,omitempty"`
	Role     string `json:"role,omitempty"`
	Text     string `json:"text"`
	At       string `json:"at,omitempty"`
}

type roomInfo struct {
	Title     string `json:"title"`
	Occupants int    `json:"occupants"`
}

type wireError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Adapter follows one room.
type Adapter struct {
	room string
	url  string

	mu        sync.Mutex
	buf       []chat.Message
	info      roomInfo
	hasInfo   bool
	connected bool
	lastErr   error
	terminal  error
	started   bool
	cancel    context.CancelFunc
}

var _ fetch.Adapter = (*Adapter)(nil)

// New builds an adapter for room at the given ws:// or wss:// URL. Nothing
// connects until the first poll.
func New(room, wsURL string) *Adapter {
	return &Adapter{room: room, url: wsURL}
}

func (a *Adapter) ID() string { return a.room }

// FetchContent drains buffered messages oldest first. Buffered messages
// outlive a dead room: they deliver first, and only an empty poll reports
// the terminal error.
func (a *Adapter) FetchContent(_ context.Context, _ time.Time, _ []string, limit int) ([]chat.Message, error) {
	a.ensureStarted()

	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.buf)
	if limit > 0 && n > limit {
		n = limit
	}
	if n > 0 {
		out := make([]chat.Message, n)
		copy(out, a.buf[:n])
		a.buf = append(a.buf[:0], a.buf[n:]...)
		return out, nil
	}
	if a.terminal != nil {
		return nil, a.terminal
	}
	if !a.connected && a.lastErr != nil {
		return nil, fmt.Errorf("connection lost: %w", a.lastErr)
	}
	return nil, nil
}

// FetchMetadata reports the room's last announced title and occupant
// count.
func (a *Adapter) FetchMetadata(_ context.Context) (fetch.Metadata, error) {
	a.ensureStarted()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminal != nil {
		return fetch.Metadata{}, a.terminal
	}
	if !a.hasInfo {
		return fetch.Metadata{Title: "Room: " + a.room}, nil
	}
	return fetch.Metadata{Title: a.info.Title, Viewers: a.info.Occupants}, nil
}

// Close stops the read loop and drops the connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	return nil
}

func (a *Adapter) ensureStarted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.runLoop(ctx)
}

func (a *Adapter) runLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		err := a.session(ctx)
		if err == nil {
			return // ctx done or terminal
		}
		a.setLastErr(err)
		logging.Warn("ws relay session ended", "room", a.room, "error", err)

		if time.Since(start) > time.Minute {
			backoff = time.Second // the last session held, start over gently
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// session dials, joins, and reads envelopes until the connection drops.
// Returns nil when the loop should stop for good.
func (a *Adapter) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	ws, _, err := websocket.Dial(dialCtx, a.url, nil)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, ws, joinRequest{Type: "join", Room: a.room}); err != nil {
		return err
	}

	a.setConnected(true)
	defer a.setConnected(false)
	logging.Info("joined ws relay room", "room", a.room)

	for {
		var env envelope
		if err := wsjson.Read(ctx, ws, &env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isExpectedDisconnect(err) {
				// Server ended the stream; a rejoin settles whether the
				// room still exists.
				return errors.New("connection closed by relay")
			}
			return err
		}
		if stop := a.handle(env); stop {
			return nil
		}
	}
}

// handle applies one envelope. Returns true when the error is terminal
// and the loop must stop.
func (a *Adapter) handle(env envelope) bool {
	switch env.Type {
	case "message":
		if env.Message != nil {
			a.push(a.convert(*env.Message))
		}
	case "info":
		if env.Info != nil {
			a.mu.Lock()
			a.info = *env.Info
			a.hasInfo = true
			a.mu.Unlock()
		}
	case "error":
		if env.Error == nil {
			return false
		}
		if env.Error.Code == "room_not_found" || env.Error.Code == "room_closed" {
			a.mu.Lock()
			a.terminal = errRoomGone
			a.mu.Unlock()
			return true
		}
		a.setLastErr(errors.New(env.Error.Msg))
	}
	return false
}

func (a *Adapter) push(m chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buf) >= maxBuffered {
		a.buf = a.buf[1:]
	}
	a.buf = append(a.buf, m)
}

func (a *Adapter) convert(wm wireMessage) chat.Message {
	authorID := wm.AuthorID
	if authorID == "" {
		authorID = wm.Author
	}
	m := chat.Message{
		ID:       wm.ID,
		SourceID: a.room,
		Author:   chat.Author{Name: wm.Author, ID: authorID},
		Role:     chat.ParseRole(wm.Role),
		Text:     wm.Text,
	}
	if wm.At != "" {
		if ts, err := time.Parse(time.RFC3339Nano, wm.At); err == nil {
			m.OccurredAt = ts
		}
	}
	return m
}

func (a *Adapter) setConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	if v {
		a.lastErr = nil
	}
	a.mu.Unlock()
}

func (a *Adapter) setLastErr(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

func isExpectedDisconnect(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
