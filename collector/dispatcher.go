package collector

import (
	"time"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/health"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/reconcile"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/sink"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

// Names of the series derived from the event streams.
const (
	MetricLedgerIndex         = "xrpl_ledger_index"
	MetricLedgerTxnCount      = "xrpl_ledger_txn_count"
	MetricLedgerCloseInterval = "xrpl_ledger_close_interval_seconds"
	MetricFeeBase             = "xrpl_fee_base_drops"
	MetricServerStateValue    = "xrpl_server_state_value"
	MetricLoadFactor          = "xrpl_server_load_factor"
)

// reconciler is the slice of the reconciliation engine the dispatcher feeds.
type reconciler interface {
	ObserveLedgerClosed(seq uint32, hash string)
	ObserveLocalValidation(seq uint32, hash string)
	RecordValidationSeen()
}

// Dispatcher routes stream events to their handlers. One malformed or
// panicking handler invocation never terminates the listen loop; the event is
// logged and dropped.
type Dispatcher struct {
	logger logging.Logger
	engine reconciler
	sink   reconcile.SampleWriter
	health *health.ConnectionHealth

	// validatorKey identifies which validations on the stream are ours.
	validatorKey string

	now func() time.Time

	// lastLedgerClose feeds the close-interval metric; touched only from the
	// listen loop.
	lastLedgerClose time.Time
}

// NewDispatcher builds the event dispatcher for the listen loop.
func NewDispatcher(
	logger logging.Logger,
	engine reconciler,
	sampleSink reconcile.SampleWriter,
	connHealth *health.ConnectionHealth,
	validatorKey string,
) *Dispatcher {
	return &Dispatcher{
		logger:       logging.ForComponent(logger, logging.ComponentDispatcher),
		engine:       engine,
		sink:         sampleSink,
		health:       connHealth,
		validatorKey: validatorKey,
		now:          time.Now,
	}
}

// Deliver is the listen-loop callback. It returns false once the connection
// is marked unhealthy, which stops the loop and hands control back to the
// supervisor.
func (d *Dispatcher) Deliver(event upstream.StreamEvent) bool {
	if !d.health.Connected() {
		d.logger.Info().Msg("connection marked unhealthy, stopping event consumption")
		return false
	}
	d.dispatch(event)
	return true
}

func (d *Dispatcher) dispatch(event upstream.StreamEvent) {
	kind := "unknown"
	defer func() {
		if r := recover(); r != nil {
			handlerFailures.WithLabelValues(kind).Inc()
			d.logger.Error().
				Str(logging.FieldEventType, kind).
				Interface("panic", r).
				Msg("event handler panicked, dropping event")
		}
	}()

	switch ev := event.(type) {
	case *upstream.LedgerClosedEvent:
		kind = "ledgerClosed"
		eventsDispatched.WithLabelValues(kind).Inc()
		d.handleLedgerClosed(ev)
	case *upstream.ServerStatusEvent:
		kind = "serverStatus"
		eventsDispatched.WithLabelValues(kind).Inc()
		d.handleServerStatus(ev)
	case *upstream.ValidationReceivedEvent:
		kind = "validationReceived"
		eventsDispatched.WithLabelValues(kind).Inc()
		d.handleValidation(ev)
	default:
		eventsDispatched.WithLabelValues("unknown").Inc()
		d.logger.Warn().Msg("no handler for stream event, dropping")
	}
}

func (d *Dispatcher) handleLedgerClosed(ev *upstream.LedgerClosedEvent) {
	d.engine.ObserveLedgerClosed(ev.Sequence, ev.Hash)

	now := d.now()
	samples := []sink.Sample{
		{Name: MetricLedgerIndex, Value: float64(ev.Sequence), At: now},
		{Name: MetricLedgerTxnCount, Value: float64(ev.TxnCount), At: now},
		{Name: MetricFeeBase, Value: float64(ev.FeeBase), At: now},
	}
	if !d.lastLedgerClose.IsZero() {
		samples = append(samples, sink.Sample{
			Name:  MetricLedgerCloseInterval,
			Value: now.Sub(d.lastLedgerClose).Seconds(),
			At:    now,
		})
	}
	d.lastLedgerClose = now
	d.sink.Write(samples...)

	d.logger.Debug().
		Uint32(logging.FieldLedgerIndex, ev.Sequence).
		Str(logging.FieldLedgerHash, ev.Hash).
		Int64("txn_count", ev.TxnCount).
		Msg("ledger closed")
}

func (d *Dispatcher) handleServerStatus(ev *upstream.ServerStatusEvent) {
	now := d.now()
	loadFactor := float64(ev.LoadFactor)
	if ev.LoadBase > 0 {
		loadFactor = float64(ev.LoadFactor) / float64(ev.LoadBase)
	}
	d.sink.Write(
		sink.Sample{Name: MetricServerStateValue, Value: float64(upstream.ServerStateValue(ev.Status)), At: now},
		sink.Sample{Name: MetricLoadFactor, Value: loadFactor, At: now},
	)

	d.logger.Info().
		Str("server_status", ev.Status).
		Float64("load_factor", loadFactor).
		Msg("server status changed")
}

func (d *Dispatcher) handleValidation(ev *upstream.ValidationReceivedEvent) {
	d.engine.RecordValidationSeen()

	if ev.PublicKey != d.validatorKey && ev.MasterKey != d.validatorKey {
		return
	}
	d.engine.ObserveLocalValidation(ev.Sequence, ev.Hash)
	d.logger.Debug().
		Uint32(logging.FieldLedgerIndex, ev.Sequence).
		Str(logging.FieldLedgerHash, ev.Hash).
		Msg("local validation observed")
}
