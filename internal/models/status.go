package models

// Processor identifies the payment processor that reported a payout.
type Processor string

const (
	ProcessorStripe       Processor = "stripe"
	ProcessorLemonSqueezy Processor = "lemonsqueezy"
	ProcessorStrike       Processor = "strike"
)

func (p Processor) Valid() bool {
	switch p {
	case ProcessorStripe, ProcessorLemonSqueezy, ProcessorStrike:
		return true
	}
	return false
}

// PayoutStatus tracks a payout from processor report to confirmed bank deposit.
//
// pending -> in_transit -> landed -> reconciled, with failed reachable from
// pending/in_transit and manual reachable from any state via operator override.
type PayoutStatus string

const (
	StatusPending    PayoutStatus = "pending"
	StatusInTransit  PayoutStatus = "in_transit"
	StatusLanded     PayoutStatus = "landed"
	StatusReconciled PayoutStatus = "reconciled"
	StatusFailed     PayoutStatus = "failed"
	StatusManual     PayoutStatus = "manual"
)

// Matchable reports whether the automatic engine may still consider the payout.
func (s PayoutStatus) Matchable() bool {
	return s == StatusPending || s == StatusInTransit
}

// Terminal statuses are never reconsidered by the automatic engine.
func (s PayoutStatus) Terminal() bool {
	switch s {
	case StatusLanded, StatusReconciled, StatusFailed, StatusManual:
		return true
	}
	return false
}

// FromProcessor reports whether a processor event may carry this status.
// Landed, reconciled and manual are only ever set by this system.
func (s PayoutStatus) FromProcessor() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusFailed:
		return true
	}
	return false
}
