// Package sources builds fetch adapters from configuration.
package sources

import (
	"fmt"
	"io"

	"github.com/nerrida/chatloom/internal/config"
	"github.com/nerrida/chatloom/internal/fetch"
	"github.com/nerrida/chatloom/internal/sources/relay"
	"github.com/nerrida/chatloom/internal/sources/sim"
	"github.com/nerrida/chatloom/internal/sources/twitchirc"
	"github.com/nerrida/chatloom/internal/sources/wsrelay"
)

// Build turns the configured source list into adapters. The config is
// assumed validated; an unknown kind still errors rather than being
// silently skipped.
func Build(cfg *config.Config) ([]fetch.Adapter, error) {
	adapters := make([]fetch.Adapter, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		switch s.Kind {
		case config.KindSim:
			adapters = append(adapters, sim.New(s.ID, sim.Options{Seed: s.Seed}))
		case config.KindRelay:
			adapters = append(adapters, relay.New(s.ID, cfg.RelayURL))
		case config.KindTwitch:
			adapters = append(adapters, twitchirc.New(s.ID))
		case config.KindWSRelay:
			adapters = append(adapters, wsrelay.New(s.ID, s.URL))
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", s.ID, s.Kind)
		}
	}
	return adapters, nil
}

// CloseAll closes every adapter that holds a connection.
func CloseAll(adapters []fetch.Adapter) {
	for _, a := range adapters {
		if c, ok := a.(io.Closer); ok {
			c.Close()
		}
	}
}
