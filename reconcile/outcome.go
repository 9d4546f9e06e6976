package reconcile

// Outcome is the finalization verdict for one ledger sequence.
type Outcome uint8

const (
	// OutcomeAgreement: our validation hash matched the consensus hash.
	OutcomeAgreement Outcome = iota + 1
	// OutcomeDisagreement: we validated a different hash than the network.
	OutcomeDisagreement
	// OutcomeUnsent: no local validation was observed before the grace period.
	OutcomeUnsent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAgreement:
		return "agreement"
	case OutcomeDisagreement:
		return "disagreement"
	case OutcomeUnsent:
		return "unsent"
	default:
		return "unknown"
	}
}

// Names of the series pushed to the remote store for validator participation.
// The recovery path queries these same names at startup.
const (
	MetricAgreements1h     = "xrpl_validation_agreements_1h"
	MetricMissed1h         = "xrpl_validations_missed_1h"
	MetricAgreements24h    = "xrpl_validation_agreements_24h"
	MetricMissed24h        = "xrpl_validations_missed_24h"
	MetricValidationsTotal = "xrpl_validations_received_total"
)
