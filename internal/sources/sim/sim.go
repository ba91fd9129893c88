// Package sim is a self-contained chat source for offline runs and demos.
// One message is due every interval; content is a pure function of the
// seed and the message index, so two adapters with the same seed emit the
// same stream regardless of when they are polled.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/fetch"
)

// overlap is how many already-delivered messages each poll re-reports, so
// downstream dedup keeps getting exercised the way real scrapers would.
const overlap = 2

var errStreamOver = errors.New("not a live video")

var simAuthors = []string{
	"quartzjay", "mellowdrift", "Nightowl_7", "prismbeam", "tessa_k",
	"GrumpObserver", "loomfan42", "softstatic", "夜空のうた", "pixel_ferret",
	"HalcyonDays", "borrowedtime",
}

var simPhrases = []string{
	"hello everyone",
	"this is actually wild",
	"W take",
	"no way that just happened",
	"wait what did I miss?",
	"lurking from work, don't tell anyone",
	"the audio is a little quiet on my end",
	"first time catching this live!",
	"can we get a replay of that",
	"chat is moving so fast today",
	"honestly the best part of my week",
	"does anyone have a link to the schedule? I keep missing the start and only ever catch the second half of these",
	"greetings from the other side of the planet, it is extremely late here and I regret nothing",
	"ok that explanation finally made it click for me",
	"brb tea",
	"the cat is back on the keyboard",
	"same time tomorrow?",
	"that chart from earlier was fascinating",
}

var simMarkers = []chat.Symbol{
	{Marker: ":wave:", Label: "wave", Image: "https://cdn.chatloom.dev/sym/wave.png"},
	{Marker: ":pog:", Label: "pog", Image: "https://cdn.chatloom.dev/sym/pog.png"},
	{Marker: ":heart:", Label: "heart", Image: "https://cdn.chatloom.dev/sym/heart.png"},
}

// Options tunes one simulated source.
type Options struct {
	Seed     int64
	Interval time.Duration // message cadence, default 400ms
	Lifetime time.Duration // 0 runs forever; otherwise the source goes dead after this
}

// Adapter implements fetch.Adapter over the generated stream.
type Adapter struct {
	id       string
	seed     int64
	interval time.Duration
	lifetime time.Duration
	start    time.Time
	now      func() time.Time
}

var _ fetch.Adapter = (*Adapter)(nil)

// New builds a simulated source. The stream starts at construction time.
func New(id string, opts Options) *Adapter {
	if opts.Interval <= 0 {
		opts.Interval = 400 * time.Millisecond
	}
	return &Adapter{
		id:       id,
		seed:     opts.Seed,
		interval: opts.Interval,
		lifetime: opts.Lifetime,
		start:    time.Now(),
		now:      time.Now,
	}
}

func (a *Adapter) ID() string { return a.id }

// FetchContent reports every message due since the cursor, oldest first,
// minus those the caller already holds. Polls re-report a small overlap
// behind the cursor on purpose.
func (a *Adapter) FetchContent(_ context.Context, since time.Time, recentIDs []string, limit int) ([]chat.Message, error) {
	now := a.now()
	if a.expired(now) {
		return nil, errStreamOver
	}
	elapsed := now.Sub(a.start)
	if elapsed < 0 || limit <= 0 {
		return nil, nil
	}
	kMax := int(elapsed / a.interval)

	kFrom := 0
	if !since.IsZero() && since.After(a.start) {
		kFrom = int(since.Sub(a.start)/a.interval) - overlap
		if kFrom < 0 {
			kFrom = 0
		}
	}

	seen := make(map[string]struct{}, len(recentIDs))
	for _, id := range recentIDs {
		seen[id] = struct{}{}
	}

	var out []chat.Message
	for k := kFrom; k <= kMax && len(out) < limit; k++ {
		m := a.messageAt(k)
		if _, dup := seen[m.ID]; dup {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// FetchMetadata reports a synthetic title and a slowly wobbling viewer
// count.
func (a *Adapter) FetchMetadata(_ context.Context) (fetch.Metadata, error) {
	now := a.now()
	if a.expired(now) {
		return fetch.Metadata{}, errStreamOver
	}
	k := 0
	if d := now.Sub(a.start); d > 0 {
		k = int(d / a.interval)
	}
	return fetch.Metadata{
		Title:   fmt.Sprintf("Simulated: %s", a.id),
		Viewers: 120 + (k%53)*7,
	}, nil
}

func (a *Adapter) expired(now time.Time) bool {
	return a.lifetime > 0 && now.Sub(a.start) > a.lifetime
}

// messageAt derives the k-th message of the stream. Everything except the
// timestamps depends only on seed and k.
func (a *Adapter) messageAt(k int) chat.Message {
	r := rand.New(rand.NewSource(a.seed ^ int64(k)*2654435761))

	author := simAuthors[r.Intn(len(simAuthors))]
	text := simPhrases[r.Intn(len(simPhrases))]

	var symbols []chat.Symbol
	if k%7 == 0 {
		sym := simMarkers[r.Intn(len(simMarkers))]
		text = text + " " + sym.Marker
		symbols = []chat.Symbol{sym}
	}

	role := chat.RoleRegular
	switch {
	case k%97 == 0:
		role = chat.RoleOwner
	case k%31 == 0:
		role = chat.RoleModerator
	case k%11 == 0:
		role = chat.RoleMember
	}

	return chat.Message{
		ID:         fmt.Sprintf("%s-%d", a.id, k),
		SourceID:   a.id,
		Author:     chat.Author{Name: author, ID: author},
		Role:       role,
		Text:       text,
		Symbols:    symbols,
		OccurredAt: a.start.Add(time.Duration(k) * a.interval),
	}
}
