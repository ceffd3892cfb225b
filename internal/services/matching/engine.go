package matching

import (
	"strings"
	"time"

	"payout-reconciliation-backend/internal/models"
)

// processorHints maps each processor to the tokens its deposits tend to carry
// in bank descriptions. Extending support for a new processor is a data change,
// not a code change.
var processorHints = map[models.Processor][]string{
	models.ProcessorStripe:       {"STRIPE", "ST-", "STRIPE TRANSFER"},
	models.ProcessorLemonSqueezy: {"LEMON", "LEMONSQUEEZY", "LS-", "GUMROAD"}, // LS may use Gumroad infra
	models.ProcessorStrike:       {"STRIKE", "ZAPHQ", "ZAP"},
}

// dateWindowDays is how far a deposit may land from the expected date.
const dateWindowDays = 3

// Pair is one planned payout/transaction link.
type Pair struct {
	Payout      models.ExpectedPayout
	Transaction models.BankTransaction
}

// Match pairs payouts with bank transactions. Payouts are taken in the order
// supplied; for each one the first transaction in the pool satisfying every
// predicate wins, and is removed from the pool before the next payout is
// considered, so a single run can never link one transaction twice.
//
// Match has no side effects. It returns a pairing plan; committing the state
// transitions is the caller's job.
func Match(payouts []models.ExpectedPayout, pool []models.BankTransaction) []Pair {
	// Work on a private copy so consuming the pool never mutates the caller's slice.
	pool = append([]models.BankTransaction(nil), pool...)

	var pairs []Pair

	for _, payout := range payouts {
		if !payout.Status.Matchable() || payout.BankTransactionID != nil {
			continue
		}
		for i, tx := range pool {
			if !satisfies(payout, tx) {
				continue
			}
			pairs = append(pairs, Pair{Payout: payout, Transaction: tx})
			pool = append(pool[:i], pool[i+1:]...)
			break
		}
	}

	return pairs
}

func satisfies(payout models.ExpectedPayout, tx models.BankTransaction) bool {
	if tx.MatchedPayoutID != nil || tx.Amount <= 0 {
		return false
	}
	// Exact minor-unit equality. No tolerance, no floats.
	if tx.Amount != payout.Amount {
		return false
	}
	if !withinDays(tx.Date, payout.ExpectedDate, dateWindowDays) {
		return false
	}
	return matchesProcessorHint(tx.Description, payout.Processor)
}

// withinDays is vacuously true when no expected date is known.
func withinDays(txDate time.Time, expected *time.Time, days int) bool {
	if expected == nil {
		return true
	}
	diff := txDate.Sub(*expected)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(days)*24*time.Hour
}

// matchesProcessorHint is vacuously true when the description is empty.
func matchesProcessorHint(description string, processor models.Processor) bool {
	if description == "" {
		return true
	}
	upper := strings.ToUpper(description)
	for _, hint := range processorHints[processor] {
		if strings.Contains(upper, hint) {
			return true
		}
	}
	return false
}
