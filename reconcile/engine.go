// Package reconcile decides, for every ledger the network closes, whether
// this operator's validator participated correctly: AGREEMENT when our
// validation hash matches the consensus hash, DISAGREEMENT when it does not,
// UNSENT when no local validation showed up before the grace period.
//
// The pending-record table is owned by a single goroutine. Consensus and
// validation observations arrive on a channel and are applied in the same
// select loop as the finalize and cleanup ticks, so no locking is needed on
// the reconciliation path. Cross-stream ordering is handled structurally:
// either event for a sequence get-or-creates the record and fills its side.
package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/sink"
)

// SampleWriter is the slice of the metrics sink the engine needs.
type SampleWriter interface {
	Write(samples ...sink.Sample)
}

// Config carries the engine's timing constants. These are fixed
// configuration, not adaptive.
type Config struct {
	// GracePeriod is the delay after a ledger close before the record may
	// finalize, absorbing normal network and ordering jitter.
	GracePeriod time.Duration

	// RepairWindow bounds how long after finalization a late validation may
	// still correct an UNSENT outcome.
	RepairWindow time.Duration

	// RetentionWindow is how long finalized records are kept before cleanup.
	RetentionWindow time.Duration

	// FinalizeInterval is the background finalization tick.
	FinalizeInterval time.Duration

	// CleanupInterval is the retention sweep tick.
	CleanupInterval time.Duration

	// Now is the clock; tests inject a fake one.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.GracePeriod == 0 {
		c.GracePeriod = 8 * time.Second
	}
	if c.RepairWindow == 0 {
		c.RepairWindow = 5 * time.Minute
	}
	if c.RetentionWindow == 0 {
		c.RetentionWindow = 10 * time.Minute
	}
	if c.FinalizeInterval == 0 {
		c.FinalizeInterval = time.Second
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// ledgerRecord is the reconciliation state for one ledger sequence.
type ledgerRecord struct {
	seq            uint32
	consensusHash  string
	validationHash string
	firstSeen      time.Time
	closeSeen      time.Time
	validationSeen time.Time
	finalized      bool
	outcome        Outcome
	finalizedAt    time.Time
	repaired       bool
	anomalyLogged  bool
}

type eventKind uint8

const (
	eventLedgerClosed eventKind = iota + 1
	eventValidation
)

type engineEvent struct {
	kind eventKind
	seq  uint32
	hash string
}

// Engine is the validation reconciliation engine.
type Engine struct {
	logger logging.Logger
	config Config
	sink   SampleWriter

	records map[uint32]*ledgerRecord
	windows *WindowedCounters

	// validationsSeen counts every validation heard on the stream, our own
	// and everyone else's. It survives collector restarts via recovery.
	validationsSeen atomic.Int64

	events chan engineEvent
}

// NewEngine builds an engine. Run starts the reconciliation loop.
func NewEngine(logger logging.Logger, config Config, sampleSink SampleWriter) *Engine {
	config.applyDefaults()
	return &Engine{
		logger:  logging.ForComponent(logger, logging.ComponentReconcile),
		config:  config,
		sink:    sampleSink,
		records: make(map[uint32]*ledgerRecord),
		windows: NewWindowedCounters(),
		events:  make(chan engineEvent, 1024),
	}
}

// ObserveLedgerClosed feeds a consensus-hash observation for seq.
func (e *Engine) ObserveLedgerClosed(seq uint32, hash string) {
	e.events <- engineEvent{kind: eventLedgerClosed, seq: seq, hash: hash}
}

// ObserveLocalValidation feeds a local-validation observation for seq.
func (e *Engine) ObserveLocalValidation(seq uint32, hash string) {
	e.events <- engineEvent{kind: eventValidation, seq: seq, hash: hash}
}

// RecordValidationSeen counts one validation heard on the stream, regardless
// of which validator signed it.
func (e *Engine) RecordValidationSeen() {
	e.validationsSeen.Add(1)
}

// ValidationsSeen returns the raw stream validation counter.
func (e *Engine) ValidationsSeen() int64 {
	return e.validationsSeen.Load()
}

// SeedRecovered installs counter values recovered from the remote store at
// startup.
func (e *Engine) SeedRecovered(counts WindowCounts, validationsSeen int64) {
	e.windows.Seed(e.config.Now(), counts)
	e.validationsSeen.Store(validationsSeen)
}

// Counters returns the current windowed counts.
func (e *Engine) Counters() WindowCounts {
	return e.windows.Snapshot(e.config.Now())
}

// Run is the single-owner reconciliation loop. All record mutation happens
// here.
func (e *Engine) Run(ctx context.Context) {
	finalizeTicker := time.NewTicker(e.config.FinalizeInterval)
	defer finalizeTicker.Stop()
	cleanupTicker := time.NewTicker(e.config.CleanupInterval)
	defer cleanupTicker.Stop()

	e.logger.Info().
		Dur("grace_period", e.config.GracePeriod).
		Dur("repair_window", e.config.RepairWindow).
		Dur("retention_window", e.config.RetentionWindow).
		Msg("reconciliation engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("reconciliation engine stopped")
			return
		case ev := <-e.events:
			switch ev.kind {
			case eventLedgerClosed:
				e.applyLedgerClosed(ev.seq, ev.hash, e.config.Now())
			case eventValidation:
				e.applyValidation(ev.seq, ev.hash, e.config.Now())
			}
		case <-finalizeTicker.C:
			now := e.config.Now()
			e.finalizePass(now)
			e.publishCounters(now)
		case <-cleanupTicker.C:
			e.cleanupPass(e.config.Now())
		}
	}
}

func (e *Engine) getOrCreate(seq uint32, now time.Time) *ledgerRecord {
	rec, ok := e.records[seq]
	if !ok {
		rec = &ledgerRecord{seq: seq, firstSeen: now}
		e.records[seq] = rec
	}
	return rec
}

func (e *Engine) applyLedgerClosed(seq uint32, hash string, now time.Time) {
	rec := e.getOrCreate(seq, now)
	if rec.consensusHash != "" {
		return
	}
	rec.consensusHash = hash
	rec.closeSeen = now
}

func (e *Engine) applyValidation(seq uint32, hash string, now time.Time) {
	rec := e.getOrCreate(seq, now)

	if !rec.finalized {
		if rec.validationHash == "" {
			rec.validationHash = hash
			rec.validationSeen = now
		}
		return
	}

	// Late-repair path: a validation that missed the grace period may still
	// correct an UNSENT verdict, exactly once, inside the repair window.
	if rec.outcome != OutcomeUnsent || rec.repaired {
		return
	}
	if now.Sub(rec.finalizedAt) > e.config.RepairWindow {
		e.logger.Warn().
			Uint32(logging.FieldLedgerIndex, seq).
			Dur("since_finalized", now.Sub(rec.finalizedAt)).
			Msg("late validation arrived outside repair window, ignoring")
		return
	}

	rec.validationHash = hash
	rec.validationSeen = now
	newOutcome := OutcomeDisagreement
	if hash == rec.consensusHash {
		newOutcome = OutcomeAgreement
	}
	rec.outcome = newOutcome
	rec.repaired = true
	e.windows.Amend(seq, newOutcome)
	lateRepairs.WithLabelValues(newOutcome.String()).Inc()

	e.logger.Info().
		Uint32(logging.FieldLedgerIndex, seq).
		Str(logging.FieldOutcome, newOutcome.String()).
		Msg("late validation repaired unsent outcome")
}

// finalizePass finalizes every record whose grace period has elapsed.
func (e *Engine) finalizePass(now time.Time) {
	for _, rec := range e.records {
		if rec.finalized {
			continue
		}

		if rec.consensusHash == "" {
			// A validation with no matching ledger close: not finalizable.
			// Warn once if it lingers well past the grace period; the
			// cleanup horizon removes it eventually.
			if !rec.anomalyLogged && now.Sub(rec.firstSeen) >= 3*e.config.GracePeriod {
				rec.anomalyLogged = true
				consensusAnomalies.Inc()
				e.logger.Warn().
					Uint32(logging.FieldLedgerIndex, rec.seq).
					Msg("consensus hash still missing after several grace periods")
			}
			continue
		}

		if now.Sub(rec.closeSeen) < e.config.GracePeriod {
			continue
		}

		outcome := OutcomeUnsent
		switch {
		case rec.validationHash == "":
			outcome = OutcomeUnsent
		case rec.validationHash == rec.consensusHash:
			outcome = OutcomeAgreement
		default:
			outcome = OutcomeDisagreement
		}

		rec.finalized = true
		rec.outcome = outcome
		rec.finalizedAt = now
		e.windows.Append(rec.seq, now, outcome)
		ledgersFinalized.WithLabelValues(outcome.String()).Inc()

		event := e.logger.Debug()
		if outcome == OutcomeDisagreement {
			event = e.logger.Warn()
		} else if outcome == OutcomeUnsent {
			event = e.logger.Info()
		}
		event.
			Uint32(logging.FieldLedgerIndex, rec.seq).
			Str(logging.FieldOutcome, outcome.String()).
			Msg("ledger finalized")
	}
	pendingRecords.Set(float64(len(e.records)))
}

// cleanupPass removes records past the retention horizon, bounding the table
// to live and recently finalized ledgers.
func (e *Engine) cleanupPass(now time.Time) {
	removed := 0
	for seq, rec := range e.records {
		expireFrom := rec.firstSeen
		if rec.finalized {
			expireFrom = rec.finalizedAt
		}
		if now.Sub(expireFrom) >= e.config.RetentionWindow {
			delete(e.records, seq)
			removed++
		}
	}
	if removed > 0 {
		e.logger.Debug().Int("removed", removed).Int("remaining", len(e.records)).Msg("cleaned up expired records")
	}
	pendingRecords.Set(float64(len(e.records)))
}

// publishCounters pushes the four window gauges and the raw validation
// counter to the store.
func (e *Engine) publishCounters(now time.Time) {
	if e.sink == nil {
		return
	}
	counts := e.windows.Snapshot(now)
	e.sink.Write(
		sink.Sample{Name: MetricAgreements1h, Value: float64(counts.Agreements1h), At: now},
		sink.Sample{Name: MetricMissed1h, Value: float64(counts.Missed1h), At: now},
		sink.Sample{Name: MetricAgreements24h, Value: float64(counts.Agreements24h), At: now},
		sink.Sample{Name: MetricMissed24h, Value: float64(counts.Missed24h), At: now},
		sink.Sample{Name: MetricValidationsTotal, Value: float64(e.validationsSeen.Load()), At: now},
	)
}
