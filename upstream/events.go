package upstream

import (
	"encoding/json"
	"strconv"
	"time"

	sdkerrors "cosmossdk.io/errors"
)

// rippleEpoch is the XRPL epoch (2000-01-01T00:00:00Z) as a Unix timestamp.
// Ledger close times on the wire are seconds since this epoch.
const rippleEpoch = 946684800

// RippleTime converts an XRPL epoch timestamp to wall-clock time.
func RippleTime(secs int64) time.Time {
	return time.Unix(secs+rippleEpoch, 0).UTC()
}

// StreamEvent is the closed set of events delivered by the subscribed
// streams. Exactly one concrete type exists per event kind; the dispatcher
// routes with a type switch so an unhandled kind is a compile-time concern.
type StreamEvent interface {
	eventType() string
}

// LedgerClosedEvent is pushed on the ledger stream when the network closes a
// ledger. The hash it carries is the consensus hash for that sequence.
type LedgerClosedEvent struct {
	Sequence   uint32
	Hash       string
	CloseTime  time.Time
	TxnCount   int64
	FeeBase    int64
	ReserveBas int64
}

func (*LedgerClosedEvent) eventType() string { return "ledgerClosed" }

// ServerStatusEvent is pushed on the server stream when the node's status or
// load changes.
type ServerStatusEvent struct {
	Status     string
	LoadFactor int64
	LoadBase   int64
}

func (*ServerStatusEvent) eventType() string { return "serverStatus" }

// ValidationReceivedEvent is pushed on the validations stream for every
// validation the node hears, our own included. PublicKey identifies the
// signing validator.
type ValidationReceivedEvent struct {
	Sequence  uint32
	Hash      string
	PublicKey string
	MasterKey string
	Full      bool
}

func (*ValidationReceivedEvent) eventType() string { return "validationReceived" }

// rawEnvelope covers the superset of fields across stream message kinds.
// rippled sends ledger_index as a number on the ledger stream and as a string
// on the validations stream, hence json.Number.
type rawEnvelope struct {
	Type        string      `json:"type"`
	LedgerIndex json.Number `json:"ledger_index"`
	LedgerHash  string      `json:"ledger_hash"`
	LedgerTime  int64       `json:"ledger_time"`
	TxnCount    int64       `json:"txn_count"`
	FeeBase     int64       `json:"fee_base"`
	ReserveBase int64       `json:"reserve_base"`

	ServerStatus string `json:"server_status"`
	LoadFactor   int64  `json:"load_factor"`
	LoadBase     int64  `json:"load_base"`

	ValidationPublicKey string `json:"validation_public_key"`
	MasterKey           string `json:"master_key"`
	Full                bool   `json:"full"`
}

// ParseStreamEvent decodes one inbound stream frame. Frames of a type outside
// the subscribed set return ErrUnknownEventType; the caller logs and drops
// those rather than failing the listen loop.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, sdkerrors.Wrap(ErrMalformedEvent, err.Error())
	}

	switch raw.Type {
	case "ledgerClosed":
		seq, err := parseSequence(raw.LedgerIndex)
		if err != nil {
			return nil, err
		}
		if raw.LedgerHash == "" {
			return nil, sdkerrors.Wrap(ErrMalformedEvent, "ledgerClosed without ledger_hash")
		}
		return &LedgerClosedEvent{
			Sequence:   seq,
			Hash:       raw.LedgerHash,
			CloseTime:  RippleTime(raw.LedgerTime),
			TxnCount:   raw.TxnCount,
			FeeBase:    raw.FeeBase,
			ReserveBas: raw.ReserveBase,
		}, nil

	case "serverStatus":
		return &ServerStatusEvent{
			Status:     raw.ServerStatus,
			LoadFactor: raw.LoadFactor,
			LoadBase:   raw.LoadBase,
		}, nil

	case "validationReceived":
		seq, err := parseSequence(raw.LedgerIndex)
		if err != nil {
			return nil, err
		}
		if raw.LedgerHash == "" || raw.ValidationPublicKey == "" {
			return nil, sdkerrors.Wrap(ErrMalformedEvent, "validationReceived missing ledger_hash or validation_public_key")
		}
		return &ValidationReceivedEvent{
			Sequence:  seq,
			Hash:      raw.LedgerHash,
			PublicKey: raw.ValidationPublicKey,
			MasterKey: raw.MasterKey,
			Full:      raw.Full,
		}, nil

	case "":
		return nil, sdkerrors.Wrap(ErrMalformedEvent, "frame without type field")

	default:
		return nil, sdkerrors.Wrap(ErrUnknownEventType, raw.Type)
	}
}

func parseSequence(n json.Number) (uint32, error) {
	if n.String() == "" {
		return 0, sdkerrors.Wrap(ErrMalformedEvent, "missing ledger_index")
	}
	seq, err := strconv.ParseUint(n.String(), 10, 32)
	if err != nil {
		return 0, sdkerrors.Wrapf(ErrMalformedEvent, "ledger_index %q: %s", n.String(), err)
	}
	return uint32(seq), nil
}
