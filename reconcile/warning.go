package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationWarning reports a balance that does not add up. It never stops
// a migration; it is logged for manual review.
type ReconciliationWarning struct {
	JournalId   int
	StatementId int
	Date        time.Time
	Expected    decimal.Decimal
	Actual      decimal.Decimal
	Reason      string
}

func (w ReconciliationWarning) Error() string {
	if w.StatementId != 0 {
		return fmt.Sprintf("journal %d statement %d (%s): %s: expected %s, got %s",
			w.JournalId, w.StatementId, w.Date.Format("2006-01-02"), w.Reason, w.Expected.String(), w.Actual.String())
	}
	return fmt.Sprintf("journal %d: %s: expected %s, got %s", w.JournalId, w.Reason, w.Expected.String(), w.Actual.String())
}

const (
	ReasonStartMismatch = "balance_start does not continue the previous statement"
	ReasonEndMismatch   = "balance_end_real differs from balance_start plus lines"
	ReasonJournalTotal  = "statement lines differ from legacy payments"
	ReasonBehindPosted  = "day precedes a posted statement"
	ReasonPostedMoved   = "posted statement would be rebalanced"
)
