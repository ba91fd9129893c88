package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerrida/chatloom/internal/config"
	"github.com/nerrida/chatloom/internal/events"
	"github.com/nerrida/chatloom/internal/fetch"
	"github.com/nerrida/chatloom/internal/liveness"
	"github.com/nerrida/chatloom/internal/logging"
	"github.com/nerrida/chatloom/internal/mergelog"
	"github.com/nerrida/chatloom/internal/sources"
	"github.com/nerrida/chatloom/internal/telemetry"
	"github.com/nerrida/chatloom/internal/transcript"
	"github.com/nerrida/chatloom/internal/ui"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "config file (default ~/.chatloom/config.yaml)")
		sourceList  = flag.String("sources", "", "comma-separated sources, kind:id (bare id means relay)")
		relayURL    = flag.String("relay", "", "override the scraping relay base URL")
		recordPath  = flag.String("record", "", "record merged messages to this sqlite file")
		listenAddr  = flag.String("listen", "", "serve /metrics and /healthz on this address")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		demo        = flag.Bool("demo", false, "watch built-in simulated sources")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("chatloom " + version)
		return
	}

	cfg := loadConfig(*configPath, *sourceList, *relayURL, *recordPath, *listenAddr, *logLevel, *demo)

	// The TUI owns the terminal; all logging goes to a file.
	if err := logging.Init("", cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	defer logging.Close()
	logging.Info("chatloom starting", "version", version, "sources", len(cfg.Sources))

	ring := events.NewRing(512)
	var trail *events.Trail
	var trailFile *os.File
	if cfg.EventsPath != "" {
		f, err := os.OpenFile(cfg.EventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open events file: %v", err)
		}
		trailFile = f
		trail = events.NewTrail(f)
	} else {
		trail = events.NewNullTrail()
	}
	trail.SetRing(ring)
	trail.Info(events.KindStartup, "main", "chatloom "+version)

	adapters, err := sources.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to build sources: %v", err)
	}
	defer sources.CloseAll(adapters)
	service := fetch.NewService(adapters)

	var recorder *transcript.Recorder
	if cfg.RecordPath != "" {
		recorder, err = transcript.Open(cfg.RecordPath)
		if err != nil {
			log.Fatalf("Failed to open transcript store: %v", err)
		}
		session, err := recorder.BeginSession(service.IDs())
		if err != nil {
			log.Fatalf("Failed to begin recording session: %v", err)
		}
		logging.Info("recording", "path", cfg.RecordPath, "session", session)
	}

	if cfg.ListenAddr != "" {
		telemetry.Init()
		srv := telemetry.NewServer(cfg.ListenAddr)
		go func() {
			if err := srv.Start(); err != nil {
				logging.Error("ops endpoint failed", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	app := ui.New(ui.Deps{
		Config:     cfg,
		Fetcher:    service,
		Log:        mergelog.New(cfg.PruneThreshold, cfg.PruneTarget),
		Classifier: liveness.NewClassifier(),
		Recorder:   recorder,
		Trail:      trail,
		Ring:       ring,
	})

	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logging.Error("program exited with error", "error", err)
	}

	if recorder != nil {
		if n, err := recorder.Flush(); err != nil {
			logging.Error("final flush failed", "error", err)
		} else if n > 0 {
			logging.Info("final flush", "saved", n)
		}
		if err := recorder.EndSession(); err != nil {
			logging.Error("end session failed", "error", err)
		}
		recorder.Close()
	}

	trail.Close()
	if trailFile != nil {
		trailFile.Close()
	}
	logging.Info("chatloom stopped")
}

// loadConfig layers flag overrides on top of the config file and
// re-validates the result.
func loadConfig(path, sourceList, relayURL, recordPath, listenAddr, logLevel string, demo bool) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if sourceList != "" {
		cfg.Sources = config.ParseSourceList(sourceList)
	}
	if demo {
		cfg.Sources = demoSources()
	}
	if relayURL != "" {
		cfg.RelayURL = relayURL
	}
	if recordPath != "" {
		cfg.RecordPath = recordPath
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func demoSources() []config.SourceConfig {
	return []config.SourceConfig{
		{ID: "gopherchat", Kind: config.KindSim, Seed: 1},
		{ID: "nightfeed", Kind: config.KindSim, Seed: 2},
		{ID: "mosaic", Kind: config.KindSim, Seed: 7},
	}
}
