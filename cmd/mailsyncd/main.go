// Command mailsyncd mirrors a local Mail.app account and its calendar
// invites into a hosted page database, and pushes AI-reviewed read/flag
// decisions back into Mail.app.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chenyqthu/mailagent/internal/arm"
	"github.com/chenyqthu/mailagent/internal/config"
	"github.com/chenyqthu/mailagent/internal/credentials"
	"github.com/chenyqthu/mailagent/internal/ical"
	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/chenyqthu/mailagent/internal/notion"
	"github.com/chenyqthu/mailagent/internal/platform"
	"github.com/chenyqthu/mailagent/internal/radar"
	"github.com/chenyqthu/mailagent/internal/reconcile"
	"github.com/chenyqthu/mailagent/internal/reverse"
	"github.com/chenyqthu/mailagent/internal/store"
	"github.com/chenyqthu/mailagent/internal/threadmgr"
)

const shutdownGracePeriod = 30 * time.Second

var (
	configPath = flag.String("config", "", "Path to config.json (defaults to the standard Application Support location)")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailsyncd: loading config: %v\n", err)
		os.Exit(1)
	}
	if *debugMode {
		cfg.Debug = true
	}

	logging.Init(logging.Options{Debug: cfg.Debug})
	log := logging.WithComponent("main")

	lock := platform.NewSingleInstanceLock()
	locked, err := lock.TryLock()
	if err != nil {
		log.Warn().Err(err).Msg("single-instance check failed, continuing anyway")
	} else if !locked {
		log.Info().Msg("another mailsyncd instance is already running, exiting")
		return
	}
	defer lock.Unlock()

	creds, err := credentials.NewStore()
	if err != nil {
		log.Fatal().Err(err).Msg("credential store unavailable")
	}
	token, err := creds.GetNotionToken()
	if err != nil {
		log.Fatal().Err(err).Msg("Notion integration token not configured; run mailsyncctl to set it")
	}

	// A SyncStore that fails to open, or a configured database id that
	// turns out to be missing, is a fatal startup condition: there is
	// nothing this daemon can usefully do without either.
	st, err := store.Open(cfg.DatabasePath, store.WithMaxRetries(cfg.MaxRetries))
	if err != nil {
		log.Fatal().Err(err).Msg("opening SyncStore failed")
	}
	defer st.Close()

	if cfg.NotionDatabaseID == "" {
		log.Fatal().Msg("notion_database_id is not configured")
	}

	// Radar unavailable is not a startup failure: with no local index to
	// watch, detect/ingest simply has nothing to do each tick, but the
	// Reconciler can and should still drain the existing pending/retry
	// queues and reverse sync can still run.
	rdr, err := radar.New(cfg.Mailboxes)
	if err != nil {
		log.Error().Err(err).Msg("locating Mail.app's Envelope Index failed; new mail will not be detected until this is resolved")
		rdr = nil
	}

	armClient := arm.New(cfg.AccountName, cfg.ApplescriptTimeout)
	notionClient := notion.NewClient(token)
	threads := threadmgr.New(notionClient, cfg.NotionDatabaseID)

	var calendar *ical.Upserter
	if cfg.NotionCalendarDatabaseID != "" {
		calendar = ical.NewUpserter(notionClient, cfg.NotionCalendarDatabaseID)
	} else {
		log.Info().Msg("no calendar database configured; calendar mirroring disabled")
	}

	reconciler := reconcile.New(rdr, armClient, st, notionClient, threads, calendar, cfg)
	reverseSync := reverse.New(notionClient, st, armClient, cfg.NotionDatabaseID, cfg.ReverseSyncInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go st.StartCheckpointRoutine(ctx)

	done := make(chan struct{}, 2)
	go func() {
		reconciler.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		reverseSync.Run(ctx)
		done <- struct{}{}
	}()

	log.Info().Str("database_id", cfg.NotionDatabaseID).Msg("mailsyncd started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, waiting for loops to stop")

	shutdownTimer := time.NewTimer(shutdownGracePeriod)
	defer shutdownTimer.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-shutdownTimer.C:
			log.Warn().Msg("shutdown grace period elapsed, exiting anyway")
			return
		}
	}

	log.Info().Msg("mailsyncd stopped cleanly")
}
