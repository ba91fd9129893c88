// Package fetch fans one poll cycle out to the per-source adapters and
// folds the results back into a single batch. Failures never fail the
// cycle: each source's error becomes a string in the batch, attributed by
// id, and the rest of the sources deliver normally.
package fetch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrida/chatloom/internal/chat"
	"github.com/nerrida/chatloom/internal/logging"
	"github.com/nerrida/chatloom/internal/mux"
	"github.com/nerrida/chatloom/internal/telemetry"
)

const (
	maxConcurrentFetches = 5
	sourceTimeout        = 8 * time.Second
)

var errUnknownSource = errors.New("unknown source")

// Adapter is one scrapeable source. Implementations are expected to be
// safe for concurrent use; content and metadata polls can overlap.
type Adapter interface {
	// ID returns the stable source id events are attributed to.
	ID() string

	// FetchContent returns events at or after since, newest page first is
	// fine; ordering and dedup happen upstream. recentIDs lists ids the
	// merge log already holds, for adapters that can skip them cheaply.
	FetchContent(ctx context.Context, since time.Time, recentIDs []string, limit int) ([]chat.Message, error)

	// FetchMetadata returns the source's current descriptive record.
	FetchMetadata(ctx context.Context) (Metadata, error)
}

// Metadata is an adapter's descriptive snapshot. Liveness is never carried
// here; a finished source reports it as a fetch error instead.
type Metadata struct {
	Title   string
	Viewers int
}

// Service implements the poll engine's fetcher boundary over a fixed set
// of adapters. Each fetch has its own timeout.
type Service struct {
	adapters map[string]Adapter
	order    []string
	timeout  time.Duration
}

// NewService builds a Service over the given adapters. Adapters with a
// blank id are dropped; on duplicate ids the first registration wins.
func NewService(adapters []Adapter) *Service {
	s := &Service{
		adapters: make(map[string]Adapter, len(adapters)),
		timeout:  sourceTimeout,
	}
	for _, a := range adapters {
		id := a.ID()
		if id == "" {
			continue
		}
		if _, dup := s.adapters[id]; dup {
			continue
		}
		s.adapters[id] = a
		s.order = append(s.order, id)
	}
	return s
}

// IDs returns the registered source ids in registration order.
func (s *Service) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// FetchContent polls every requested source in parallel and folds the
// results into one batch, events in source order. The returned error is
// always nil: per-source failures are reported inside the batch.
func (s *Service) FetchContent(ctx context.Context, sources []string, cursor mux.Cursor, pageSize int) (mux.ContentBatch, error) {
	type slot struct {
		events []chat.Message
		err    error
	}
	slots := make([]slot, len(sources))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for i, id := range sources {
		i, id := i, id
		a, ok := s.adapters[id]
		if !ok {
			slots[i].err = errUnknownSource
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				slots[i].err = ctx.Err()
				return nil
			}
			fctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			start := time.Now()
			events, err := a.FetchContent(fctx, cursor.Since, cursor.RecentIDs, pageSize)
			telemetry.ObserveFetch(time.Since(start))
			slots[i] = slot{events: events, err: err}
			if err != nil {
				telemetry.CountPollError()
				logging.Debug("content fetch failed", "source", id, "error", err)
			}
			return nil // never fail the group, errors are reported per source
		})
	}
	_ = g.Wait()

	var batch mux.ContentBatch
	for i, sl := range slots {
		if sl.err != nil {
			batch.Errors = append(batch.Errors, sources[i]+": "+sl.err.Error())
			continue
		}
		batch.Events = append(batch.Events, sl.events...)
	}
	return batch, nil
}

// FetchMetadata polls descriptive records for every requested source in
// parallel. Like FetchContent, the returned error is always nil.
func (s *Service) FetchMetadata(ctx context.Context, sources []string) (mux.MetadataBatch, error) {
	type slot struct {
		meta Metadata
		err  error
	}
	slots := make([]slot, len(sources))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for i, id := range sources {
		i, id := i, id
		a, ok := s.adapters[id]
		if !ok {
			slots[i].err = errUnknownSource
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				slots[i].err = ctx.Err()
				return nil
			}
			fctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			start := time.Now()
			meta, err := a.FetchMetadata(fctx)
			telemetry.ObserveFetch(time.Since(start))
			slots[i] = slot{meta: meta, err: err}
			if err != nil {
				telemetry.CountPollError()
				logging.Debug("metadata fetch failed", "source", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var batch mux.MetadataBatch
	for i, sl := range slots {
		if sl.err != nil {
			batch.Errors = append(batch.Errors, sources[i]+": "+sl.err.Error())
			continue
		}
		batch.Records = append(batch.Records, mux.SourceRecord{
			SourceID: sources[i],
			Title:    sl.meta.Title,
			Viewers:  sl.meta.Viewers,
		})
	}
	return batch, nil
}
