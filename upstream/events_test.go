//go:build test

package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRippleTime(t *testing.T) {
	// XRPL epoch zero is 2000-01-01T00:00:00Z.
	require.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), RippleTime(0))
	require.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), RippleTime(770558400))
}

func TestParseStreamEvent_LedgerClosed(t *testing.T) {
	frame := []byte(`{
		"type": "ledgerClosed",
		"ledger_index": 91234567,
		"ledger_hash": "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789",
		"ledger_time": 770558400,
		"txn_count": 42,
		"fee_base": 10,
		"reserve_base": 10000000
	}`)

	event, err := ParseStreamEvent(frame)
	require.NoError(t, err)

	closed, ok := event.(*LedgerClosedEvent)
	require.True(t, ok)
	require.Equal(t, uint32(91234567), closed.Sequence)
	require.Equal(t, "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789", closed.Hash)
	require.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), closed.CloseTime)
	require.Equal(t, int64(42), closed.TxnCount)
	require.Equal(t, int64(10), closed.FeeBase)
}

func TestParseStreamEvent_ServerStatus(t *testing.T) {
	frame := []byte(`{
		"type": "serverStatus",
		"server_status": "proposing",
		"load_factor": 256,
		"load_base": 256
	}`)

	event, err := ParseStreamEvent(frame)
	require.NoError(t, err)

	status, ok := event.(*ServerStatusEvent)
	require.True(t, ok)
	require.Equal(t, "proposing", status.Status)
	require.Equal(t, int64(256), status.LoadFactor)
	require.Equal(t, int64(256), status.LoadBase)
}

func TestParseStreamEvent_ValidationReceived(t *testing.T) {
	// The validations stream sends ledger_index as a JSON string.
	frame := []byte(`{
		"type": "validationReceived",
		"ledger_index": "91234567",
		"ledger_hash": "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789",
		"validation_public_key": "n9KaXRPLvalidator",
		"master_key": "nHMasterKey",
		"full": true
	}`)

	event, err := ParseStreamEvent(frame)
	require.NoError(t, err)

	validation, ok := event.(*ValidationReceivedEvent)
	require.True(t, ok)
	require.Equal(t, uint32(91234567), validation.Sequence)
	require.Equal(t, "n9KaXRPLvalidator", validation.PublicKey)
	require.Equal(t, "nHMasterKey", validation.MasterKey)
	require.True(t, validation.Full)
}

func TestParseStreamEvent_UnknownType(t *testing.T) {
	_, err := ParseStreamEvent([]byte(`{"type":"transaction","hash":"AA"}`))
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestParseStreamEvent_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{{{`},
		{"missing type", `{"ledger_index": 5}`},
		{"ledgerClosed without hash", `{"type":"ledgerClosed","ledger_index":5}`},
		{"ledgerClosed without index", `{"type":"ledgerClosed","ledger_hash":"AA"}`},
		{"validation without signer", `{"type":"validationReceived","ledger_index":"5","ledger_hash":"AA"}`},
		{"index overflows uint32", `{"type":"ledgerClosed","ledger_index":4294967296,"ledger_hash":"AA"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseStreamEvent([]byte(tc.frame))
			require.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
