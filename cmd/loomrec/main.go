// loomrec records merged chat to sqlite without drawing a UI. It runs
// the same polling engine as chatloom under a renderless Bubble Tea
// program and stops on SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
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

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "config file (default ~/.chatloom/config.yaml)")
		sourceList  = flag.String("sources", "", "comma-separated sources, kind:id (bare id means relay)")
		relayURL    = flag.String("relay", "", "override the scraping relay base URL")
		recordPath  = flag.String("record", "", "sqlite file to record to (default ~/.chatloom/transcript.db)")
		listenAddr  = flag.String("listen", "", "serve /metrics and /healthz on this address")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("loomrec " + version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *sourceList != "" {
		cfg.Sources = config.ParseSourceList(*sourceList)
	}
	if *relayURL != "" {
		cfg.RelayURL = *relayURL
	}
	if *recordPath != "" {
		cfg.RecordPath = *recordPath
	}
	if cfg.RecordPath == "" {
		cfg.RecordPath = filepath.Join(config.StateDir(), "transcript.db")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.Init("", cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	defer logging.Close()

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
	trail.Info(events.KindStartup, "loomrec", "loomrec "+version)

	adapters, err := sources.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to build sources: %v", err)
	}
	defer sources.CloseAll(adapters)
	service := fetch.NewService(adapters)

	recorder, err := transcript.Open(cfg.RecordPath)
	if err != nil {
		log.Fatalf("Failed to open transcript store: %v", err)
	}
	session, err := recorder.BeginSession(service.IDs())
	if err != nil {
		log.Fatalf("Failed to begin recording session: %v", err)
	}
	log.Printf("Recording %d sources to %s (session %s)", len(cfg.Sources), cfg.RecordPath, session)

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

	mergeLog := mergelog.New(cfg.PruneThreshold, cfg.PruneTarget)
	app := ui.New(ui.Deps{
		Config:     cfg,
		Fetcher:    service,
		Log:        mergeLog,
		Classifier: liveness.NewClassifier(),
		Recorder:   recorder,
		Trail:      trail,
		Ring:       ring,
	})

	program := tea.NewProgram(app, tea.WithoutRenderer(), tea.WithInput(nil))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, stopping...")
		program.Quit()
	}()

	// Progress heartbeat so a detached run is observable.
	stopStatus := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stopStatus:
				return
			case <-ticker.C:
				log.Printf("Merged %d messages, %d pending flush", mergeLog.Len(), recorder.PendingCount())
			}
		}
	}()

	if _, err := program.Run(); err != nil && err != tea.ErrInterrupted {
		logging.Error("program exited with error", "error", err)
	}
	close(stopStatus)

	if n, err := recorder.Flush(); err != nil {
		logging.Error("final flush failed", "error", err)
	} else if n > 0 {
		logging.Info("final flush", "saved", n)
	}
	if err := recorder.EndSession(); err != nil {
		logging.Error("end session failed", "error", err)
	}
	recorder.Close()

	trail.Close()
	if trailFile != nil {
		trailFile.Close()
	}
	log.Printf("Recorded session %s, merged %d messages", session, mergeLog.Len())
}
