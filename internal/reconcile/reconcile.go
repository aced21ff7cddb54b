// Package reconcile implements the Reconciler: the cooperative loop that
// ties Radar, Arm, SyncStore, and the remote page database together. Each
// tick detects new local mail, ingests it into SyncStore, processes
// pending and retry-eligible messages through the sync pipeline, and
// checks the health of its two dependencies.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/chenyqthu/mailagent/internal/arm"
	"github.com/chenyqthu/mailagent/internal/config"
	"github.com/chenyqthu/mailagent/internal/health"
	"github.com/chenyqthu/mailagent/internal/ical"
	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/chenyqthu/mailagent/internal/notion"
	"github.com/chenyqthu/mailagent/internal/radar"
	"github.com/chenyqthu/mailagent/internal/store"
	"github.com/chenyqthu/mailagent/internal/threadmgr"
	"github.com/rs/zerolog"
)

const (
	// maxPendingPerTick bounds how many newly-pending messages are pushed
	// through the pipeline in a single tick, so a large backlog doesn't
	// starve the retry batch or the next detect/ingest pass.
	maxPendingPerTick = 10

	// retryBatchPerTick bounds how many overdue failed/fetch_failed
	// messages are retried in a single tick.
	retryBatchPerTick = 3

	// consecutiveErrorThreshold is how many consecutive failing ticks
	// trigger a health-check probe; the probe, not an individual tick
	// error, is what can stop the loop.
	consecutiveErrorThreshold = 5
)

// Reconciler owns the three local/remote handles and runs the sync loop.
type Reconciler struct {
	radar    *radar.Radar
	arm      *arm.Arm
	store    *store.Store
	notion   *notion.Client
	threads  *threadmgr.Manager
	calendar *ical.Upserter // nil disables calendar mirroring
	cfg      config.Config
	log      zerolog.Logger

	consecutiveErrors int
}

// New returns a Reconciler wired against its dependencies. calendar may be
// nil if cfg.NotionCalendarDatabaseID was empty at startup.
func New(r *radar.Radar, a *arm.Arm, s *store.Store, n *notion.Client, t *threadmgr.Manager, calendar *ical.Upserter, cfg config.Config) *Reconciler {
	return &Reconciler{
		radar:    r,
		arm:      a,
		store:    s,
		notion:   n,
		threads:  t,
		calendar: calendar,
		cfg:      cfg,
		log:      logging.WithComponent("reconciler"),
	}
}

// Run drives the poll loop until ctx is cancelled. A tick runs immediately
// on entry so a freshly started daemon doesn't wait a full interval before
// doing anything. The loop stops early if, after repeated tick failures,
// Tick reports that both health probes failed.
func (rc *Reconciler) Run(ctx context.Context) {
	if !rc.Tick(ctx) {
		return
	}

	ticker := time.NewTicker(rc.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rc.log.Info().Msg("Reconciler loop stopping")
			return
		case <-ticker.C:
			if !rc.Tick(ctx) {
				return
			}
		}
	}
}

// Tick runs one full pass: detect/ingest, process pending, process
// retries, and health accounting. Each step's failure is logged and does
// not abort the remaining steps — a single bad tick should not wedge the
// whole loop. consecutiveErrors resets on any tick where every step
// succeeds; once it reaches consecutiveErrorThreshold, the health-check
// probe runs and, if both probes fail (Status.Critical), Tick returns
// false so the caller stops the loop.
func (rc *Reconciler) Tick(ctx context.Context) bool {
	tickFailed := false

	if err := rc.detectAndIngest(ctx); err != nil {
		rc.log.Error().Err(err).Msg("detect/ingest failed")
		tickFailed = true
	}

	if err := rc.processBatch(ctx, rc.pendingBatch, maxPendingPerTick); err != nil {
		rc.log.Error().Err(err).Msg("processing pending messages failed")
		tickFailed = true
	}

	if err := rc.processBatch(ctx, rc.retryBatch, retryBatchPerTick); err != nil {
		rc.log.Error().Err(err).Msg("processing retry batch failed")
		tickFailed = true
	}

	if tickFailed {
		rc.consecutiveErrors++
	} else {
		rc.consecutiveErrors = 0
	}

	if rc.consecutiveErrors < consecutiveErrorThreshold {
		return true
	}

	return rc.healthCheck(ctx)
}

// unavailableRadar stands in for the health probe when Radar failed to
// locate Mail.app's Envelope Index at startup, so the probe reports
// Radar down instead of dereferencing a nil *radar.Radar.
type unavailableRadar struct{}

func (unavailableRadar) CurrentMaxRowID() (int64, error) {
	return 0, errors.New("radar: not available")
}

func (rc *Reconciler) pendingBatch(limit int) ([]store.Message, error) {
	return rc.store.GetPending(limit)
}

func (rc *Reconciler) retryBatch(limit int) ([]store.Message, error) {
	return rc.store.GetReadyForRetry(limit)
}

func (rc *Reconciler) processBatch(ctx context.Context, fetch func(int) ([]store.Message, error), limit int) error {
	messages, err := fetch(limit)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rc.processMessage(ctx, m.InternalID, m.Mailbox)
	}
	return nil
}

// detectAndIngest asks Radar for rows newer than the checkpoint, inserts
// each as pending, and advances the checkpoint only after every row in
// the batch is recorded — so a crash mid-batch simply repeats a now-
// idempotent insert pass on restart rather than losing rows. A nil Radar
// (index unavailable at startup) makes this a no-op rather than a tick
// failure: the pending/retry batches still drain independently of it.
func (rc *Reconciler) detectAndIngest(ctx context.Context) error {
	if rc.radar == nil {
		return nil
	}

	lastMax, err := rc.store.LastMaxRowID()
	if err != nil {
		return err
	}

	hasNew, currentMax, estimatedNew, err := rc.radar.CheckForChanges(lastMax)
	if err != nil {
		return err
	}
	if !hasNew {
		return nil
	}

	rc.log.Debug().Int64("estimated_new", estimatedNew).Msg("new messages detected")

	rows, err := rc.radar.GetNewEmails(lastMax)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := rc.store.Insert(store.InsertMeta{
			InternalID:   row.InternalID,
			Mailbox:      row.Mailbox,
			DateReceived: row.DateReceived,
			IsRead:       row.IsRead,
			IsFlagged:    row.IsFlagged,
		}); err != nil {
			return err
		}
	}

	return rc.store.SetLastMaxRowID(currentMax)
}

// healthCheck probes SyncStore and Radar after consecutiveErrorThreshold
// consecutive failing ticks. It returns false only when both probes
// disagree with "healthy" at once — that is the one condition allowed to
// stop the Reconciler loop; either probe passing is enough to keep going.
func (rc *Reconciler) healthCheck(ctx context.Context) bool {
	var radarProbe health.RowCounter = unavailableRadar{}
	if rc.radar != nil {
		radarProbe = rc.radar
	}

	status := health.Check(rc.store, radarProbe)
	if status.Critical() {
		rc.log.Error().Str("status", status.String()).Msg("health check failed after repeated tick errors, stopping Reconciler loop")
		return false
	}

	rc.log.Warn().Int("consecutive_errors", rc.consecutiveErrors).Str("status", status.String()).Msg("repeated tick errors but health check did not confirm both probes down, continuing")
	return true
}
