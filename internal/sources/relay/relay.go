// Package relay scrapes a live stream's chat through a local relay
// process that speaks a small JSON protocol: POST /v1/content for message
// pages, GET /v1/metadata for title/viewers/liveness. The relay reports
// a finished or unreachable stream as an error string, which this adapter
// passes through verbatim so the liveness classifier can read it.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/fetch"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultBaseURL is where the relay listens when started with its
	// own defaults.
	DefaultBaseURL = "http://127.0.0.1:8177"

	userAgent    = "chatloom/0.1 (+https://github.com/nerrida/chatloom)"
	maxBodyBytes = 10 << 20
)

type contentRequest struct {
	Video     string   `json:"video"`
	Since     string   `json:"since,omitempty"`
	RecentIDs []string `json:"recent_ids,omitempty"`
	PageSize  int      `json:"page_size"`
}

type contentResponse struct {
	Messages []wireMessage `json:"messages"`
	Error    string        `json:"error,omitempty"`
}

type metadataResponse struct {
	Title   string `json:"title"`
	Viewers int    `json:"viewers"`
	Live    bool   `json:"live"`
	Error   string `json:"error,omitempty"`
}

type wireMessage struct {
	ID        string       `json:"id"`
	Author    wireAuthor   `json:"author"`
	Role      string       `json:"role,omitempty"`
	Text      string       `json:"text"`
	Symbols   []wireSymbol `json:"symbols,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
}

type wireAuthor struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type wireSymbol struct {
	Marker string `json:"marker"`
	Image  string `json:"image,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Adapter polls one video's chat through the relay.
type Adapter struct {
	video   string
	base    string
	client  *http.Client
	limiter *rate.Limiter
}

var _ fetch.Adapter = (*Adapter)(nil)

// New builds a relay adapter for the given video id. baseURL may be empty
// to use the default local relay address.
func New(video, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		video:   video,
		base:    strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

func (a *Adapter) ID() string { return a.video }

// FetchContent requests one page of messages at or after since. Timestamps
// the relay could not produce come back zero and are normalized upstream.
func (a *Adapter) FetchContent(ctx context.Context, since time.Time, recentIDs []string, limit int) ([]chat.Message, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("relay: rate limiter wait: %w", err)
	}

	reqBody := contentRequest{Video: a.video, RecentIDs: recentIDs, PageSize: limit}
	if !since.IsZero() {
		reqBody.Since = since.UTC().Format(time.RFC3339Nano)
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("relay: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/v1/content", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("relay: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	var resp contentResponse
	if err := a.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		// Verbatim: the classifier reads these.
		return nil, errors.New(resp.Error)
	}

	out := make([]chat.Message, 0, len(resp.Messages))
	for _, wm := range resp.Messages {
		out = append(out, a.convert(wm))
	}
	return out, nil
}

// FetchMetadata reports the stream's descriptive record. A stream the
// relay says is no longer live comes back as a dead-stream error.
func (a *Adapter) FetchMetadata(ctx context.Context) (fetch.Metadata, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return fetch.Metadata{}, fmt.Errorf("relay: rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/v1/metadata?video="+url.QueryEscape(a.video), nil)
	if err != nil {
		return fetch.Metadata{}, fmt.Errorf("relay: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	var resp metadataResponse
	if err := a.do(req, &resp); err != nil {
		return fetch.Metadata{}, err
	}
	if resp.Error != "" {
		return fetch.Metadata{}, errors.New(resp.Error)
	}
	if !resp.Live {
		return fetch.Metadata{}, errors.New("not a live video")
	}
	return fetch.Metadata{Title: resp.Title, Viewers: resp.Viewers}, nil
}

func (a *Adapter) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("relay: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay: status %d: %s", resp.StatusCode, strings.TrimSpace(firstLine(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("relay: failed to parse response: %w", err)
	}
	return nil
}

func (a *Adapter) convert(wm wireMessage) chat.Message {
	m := chat.Message{
		ID:       wm.ID,
		SourceID: a.video,
		Author:   chat.Author{Name: wm.Author.Name, ID: wm.Author.ID},
		Role:     chat.ParseRole(wm.Role),
		Text:     wm.Text,
	}
	for _, ws := range wm.Symbols {
		m.Symbols = append(m.Symbols, chat.Symbol{Marker: ws.Marker, Image: ws.Image, Label: ws.Label})
	}
	if wm.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, wm.Timestamp); err == nil {
			m.OccurredAt = ts
		}
		// Unparsable timestamps stay zero; the merge log falls back to
		// receipt time.
	}
	return m
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
