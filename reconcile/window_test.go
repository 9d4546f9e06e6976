package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowedCounters_AppendAndSnapshot(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	counters := NewWindowedCounters()

	counters.Append(1, base, OutcomeAgreement)
	counters.Append(2, base.Add(time.Second), OutcomeAgreement)
	counters.Append(3, base.Add(2*time.Second), OutcomeUnsent)
	counters.Append(4, base.Add(3*time.Second), OutcomeDisagreement)

	counts := counters.Snapshot(base.Add(5 * time.Second))
	require.Equal(t, 2, counts.Agreements1h)
	require.Equal(t, 2, counts.Missed1h)
	require.Equal(t, 2, counts.Agreements24h)
	require.Equal(t, 2, counts.Missed24h)
}

func TestWindowedCounters_HourWindowPrunes(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	counters := NewWindowedCounters()

	counters.Append(1, base, OutcomeAgreement)
	counters.Append(2, base.Add(30*time.Minute), OutcomeUnsent)

	// 61 minutes later the first entry has aged out of the hour window but
	// still counts toward the day window.
	counts := counters.Snapshot(base.Add(61 * time.Minute))
	require.Equal(t, 0, counts.Agreements1h)
	require.Equal(t, 1, counts.Missed1h)
	require.Equal(t, 1, counts.Agreements24h)
	require.Equal(t, 1, counts.Missed24h)

	// Past a day, everything is gone.
	counts = counters.Snapshot(base.Add(25 * time.Hour))
	require.Equal(t, WindowCounts{}, counts)
}

func TestWindowedCounters_AmendFlipsBothWindows(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	counters := NewWindowedCounters()

	counters.Append(10, base, OutcomeUnsent)
	counters.Amend(10, OutcomeAgreement)

	counts := counters.Snapshot(base.Add(time.Second))
	require.Equal(t, 1, counts.Agreements1h)
	require.Equal(t, 0, counts.Missed1h)
	require.Equal(t, 1, counts.Agreements24h)
	require.Equal(t, 0, counts.Missed24h)

	// Re-amending to the same outcome is a no-op.
	counters.Amend(10, OutcomeAgreement)
	counts = counters.Snapshot(base.Add(time.Second))
	require.Equal(t, 1, counts.Agreements1h)
	require.Equal(t, 0, counts.Missed1h)
}

func TestWindowedCounters_AmendUnknownSequence(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	counters := NewWindowedCounters()

	counters.Append(10, base, OutcomeUnsent)
	counters.Amend(99, OutcomeAgreement)

	counts := counters.Snapshot(base.Add(time.Second))
	require.Equal(t, 0, counts.Agreements1h)
	require.Equal(t, 1, counts.Missed1h)
}

func TestWindowedCounters_SeedDecaysAtBoundary(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	counters := NewWindowedCounters()

	counters.Seed(base, WindowCounts{
		Agreements1h: 50, Missed1h: 3, Agreements24h: 1200, Missed24h: 40,
	})
	counters.Append(500, base.Add(time.Minute), OutcomeAgreement)

	counts := counters.Snapshot(base.Add(2 * time.Minute))
	require.Equal(t, 51, counts.Agreements1h)
	require.Equal(t, 3, counts.Missed1h)
	require.Equal(t, 1201, counts.Agreements24h)
	require.Equal(t, 40, counts.Missed24h)

	// The recovered aggregate expires as one unit once the hour passes.
	counts = counters.Snapshot(base.Add(61 * time.Minute))
	require.Equal(t, 0, counts.Agreements1h)
	require.Equal(t, 0, counts.Missed1h)
	require.Equal(t, 1201, counts.Agreements24h)
	require.Equal(t, 40, counts.Missed24h)
}

func TestWindowedCounters_AmendSkipsSeedEntries(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	counters := NewWindowedCounters()

	// Seed entries use sequence 0; a live outcome for sequence 0 must never
	// flip the aggregate.
	counters.Seed(base, WindowCounts{Missed1h: 5, Missed24h: 5})
	counters.Amend(0, OutcomeAgreement)

	counts := counters.Snapshot(base.Add(time.Second))
	require.Equal(t, 5, counts.Missed1h)
	require.Equal(t, 0, counts.Agreements1h)
}
