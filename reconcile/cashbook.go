package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashBook keeps the statement chain of one cash journal. Statements are
// ordered by (date, sequence); every statement starts where the previous one
// ended. Callers hold the journal lock while using it.
type CashBook struct {
	db         *gorm.DB
	propertyId int
	journalId  int
	chainLimit int
	now        func() time.Time
}

// NewCashBook binds a journal. chainLimit bounds how many statements PostChain
// visits besides the starting one; 0 means no bound.
func NewCashBook(db *gorm.DB, propertyId, journalId, chainLimit int) *CashBook {
	return &CashBook{db: db, propertyId: propertyId, journalId: journalId, chainLimit: chainLimit, now: time.Now}
}

func (cb *CashBook) statements(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.CashStatement{}).Where("property_id = ? AND journal_id = ?", cb.propertyId, cb.journalId)
}

// AppendDay adds lines to the journal's statement for day. A day whose
// statement is already posted gets a supplementary statement. Later draft
// statements are rebalanced so the chain stays continuous. A day before the
// journal's latest posted statement is refused with a ReconciliationWarning and
// nothing is written.
func (cb *CashBook) AppendDay(ctx context.Context, day time.Time, lines []models.StatementLine) (*models.CashStatement, error) {
	day = utils.DateOnly(day)
	var out models.CashStatement
	err := cb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := cb.checkAfterPosted(tx, day, lines); err != nil {
			return err
		}
		st, err := cb.openStatement(tx, day)
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].StatementId = st.ID
			lines[i].PropertyId = cb.propertyId
			lines[i].JournalId = cb.journalId
			lines[i].Date = day
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		if err := cb.rebalanceFrom(tx, st); err != nil {
			return err
		}
		return tx.First(&out, st.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// checkAfterPosted refuses a day that would have to be placed before a posted
// statement.
func (cb *CashBook) checkAfterPosted(tx *gorm.DB, day time.Time, lines []models.StatementLine) error {
	var last models.CashStatement
	err := cb.statements(tx).Where("state = ?", models.StatementStatePosted).
		Order("date DESC").Order("sequence DESC").Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !utils.DateOnly(last.Date).After(day) {
		return nil
	}
	moved := last.BalanceEndReal
	for _, l := range lines {
		moved = moved.Add(l.Amount)
	}
	return ReconciliationWarning{
		JournalId: cb.journalId, StatementId: last.ID, Date: last.Date,
		Expected: last.BalanceEndReal, Actual: moved,
		Reason: fmt.Sprintf("%s: %s", ReasonBehindPosted, day.Format("2006-01-02")),
	}
}

func (cb *CashBook) openStatement(tx *gorm.DB, day time.Time) (*models.CashStatement, error) {
	var last models.CashStatement
	err := cb.statements(tx).Where("date = ?", day).Order("sequence DESC").Take(&last).Error
	seq := 0
	switch {
	case err == nil && last.State != models.StatementStatePosted:
		return &last, nil
	case err == nil:
		seq = last.Sequence + 1
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	start, err := cb.balanceBefore(tx, day, seq)
	if err != nil {
		return nil, err
	}
	st := &models.CashStatement{
		PropertyId:     cb.propertyId,
		JournalId:      cb.journalId,
		Date:           day,
		Sequence:       seq,
		Name:           statementName(day, seq),
		BalanceStart:   start,
		BalanceEndReal: start,
		State:          models.StatementStateDraft,
	}
	if err := tx.Create(st).Error; err != nil {
		return nil, err
	}
	return st, nil
}

func statementName(day time.Time, seq int) string {
	if seq == 0 {
		return day.Format("2006-01-02")
	}
	return fmt.Sprintf("%s/%d", day.Format("2006-01-02"), seq)
}

// balanceBefore is the closing balance of the statement preceding (day, seq),
// or zero for the first statement of the journal.
func (cb *CashBook) balanceBefore(tx *gorm.DB, day time.Time, seq int) (decimal.Decimal, error) {
	var prev models.CashStatement
	err := cb.statements(tx).
		Where("date < ? OR (date = ? AND sequence < ?)", day, day, seq).
		Order("date DESC").Order("sequence DESC").
		Take(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return prev.BalanceEndReal, nil
}

// rebalanceFrom recomputes st and every statement after it. Posted statements
// are never rewritten; one that would move aborts the write.
func (cb *CashBook) rebalanceFrom(tx *gorm.DB, st *models.CashStatement) error {
	var chain []models.CashStatement
	err := cb.statements(tx).
		Where("date > ? OR (date = ? AND sequence >= ?)", st.Date, st.Date, st.Sequence).
		Order("date ASC").Order("sequence ASC").
		Find(&chain).Error
	if err != nil {
		return err
	}
	sums, err := lineSums(tx, chain)
	if err != nil {
		return err
	}
	prevEnd, err := cb.balanceBefore(tx, st.Date, st.Sequence)
	if err != nil {
		return err
	}
	for _, s := range chain {
		end := prevEnd.Add(sums[s.ID])
		if !s.BalanceStart.Equal(prevEnd) || !s.BalanceEndReal.Equal(end) {
			if s.State == models.StatementStatePosted {
				return ReconciliationWarning{
					JournalId: cb.journalId, StatementId: s.ID, Date: s.Date,
					Expected: s.BalanceEndReal, Actual: end, Reason: ReasonPostedMoved,
				}
			}
			err := tx.Model(&models.CashStatement{}).Where("id = ?", s.ID).
				Updates(map[string]interface{}{"balance_start": prevEnd, "balance_end_real": end}).Error
			if err != nil {
				return err
			}
		}
		prevEnd = end
	}
	return nil
}

func lineSums(tx *gorm.DB, statements []models.CashStatement) (map[int]decimal.Decimal, error) {
	sums := make(map[int]decimal.Decimal, len(statements))
	if len(statements) == 0 {
		return sums, nil
	}
	ids := make([]int, len(statements))
	for i, s := range statements {
		ids[i] = s.ID
	}
	for _, chunk := range utils.Chunk(ids, 1000) {
		var rows []struct {
			StatementId int
			Amount      decimal.Decimal
		}
		if err := tx.Model(&models.StatementLine{}).Select("statement_id, amount").
			Where("statement_id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			sums[r.StatementId] = sums[r.StatementId].Add(r.Amount)
		}
	}
	return sums, nil
}

// PostChain posts start and the draft statements adjacent to it, walking
// forward first and then backward, so no draft statement is left between two
// posted ones. It returns how many statements were posted.
func (cb *CashBook) PostChain(ctx context.Context, start *models.CashStatement) (int, error) {
	posted := 0
	err := cb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chain []models.CashStatement
		if err := cb.statements(tx).Select("id, date, sequence, state").
			Order("date ASC").Order("sequence ASC").Find(&chain).Error; err != nil {
			return err
		}
		at := -1
		for i, s := range chain {
			if s.ID == start.ID {
				at = i
				break
			}
		}
		if at < 0 {
			return fmt.Errorf("statement %d is not in journal %d", start.ID, cb.journalId)
		}

		work := []int{at}
		for i := at + 1; i < len(chain) && chain[i].State == models.StatementStateDraft; i++ {
			work = append(work, i)
		}
		for i := at - 1; i >= 0 && chain[i].State == models.StatementStateDraft; i-- {
			work = append(work, i)
		}
		if cb.chainLimit > 0 && len(work) > cb.chainLimit+1 {
			work = work[:cb.chainLimit+1]
		}

		now := cb.now()
		for len(work) > 0 {
			i := work[0]
			work = work[1:]
			if chain[i].State == models.StatementStatePosted {
				continue
			}
			err := tx.Model(&models.CashStatement{}).Where("id = ?", chain[i].ID).
				Updates(map[string]interface{}{"state": models.StatementStatePosted, "posted_at": now}).Error
			if err != nil {
				return err
			}
			chain[i].State = models.StatementStatePosted
			posted++
		}
		return nil
	})
	return posted, err
}

// VerifyChain checks continuity and closing balances of the whole journal.
func (cb *CashBook) VerifyChain(ctx context.Context) ([]ReconciliationWarning, error) {
	tx := cb.db.WithContext(ctx)
	var chain []models.CashStatement
	if err := cb.statements(tx).Order("date ASC").Order("sequence ASC").Find(&chain).Error; err != nil {
		return nil, err
	}
	sums, err := lineSums(tx, chain)
	if err != nil {
		return nil, err
	}
	var warnings []ReconciliationWarning
	for i, s := range chain {
		if i > 0 && !s.BalanceStart.Equal(chain[i-1].BalanceEndReal) {
			warnings = append(warnings, ReconciliationWarning{
				JournalId: cb.journalId, StatementId: s.ID, Date: s.Date,
				Expected: chain[i-1].BalanceEndReal, Actual: s.BalanceStart, Reason: ReasonStartMismatch,
			})
		}
		if want := s.BalanceStart.Add(sums[s.ID]); !s.BalanceEndReal.Equal(want) {
			warnings = append(warnings, ReconciliationWarning{
				JournalId: cb.journalId, StatementId: s.ID, Date: s.Date,
				Expected: want, Actual: s.BalanceEndReal, Reason: ReasonEndMismatch,
			})
		}
	}
	return warnings, nil
}

// CheckJournalTotals compares the lines written for the given legacy payments
// with the sign-adjusted legacy total.
func (cb *CashBook) CheckJournalTotals(ctx context.Context, remoteIds []int, expected decimal.Decimal) (*ReconciliationWarning, error) {
	actual := decimal.Zero
	for _, chunk := range utils.Chunk(remoteIds, 1000) {
		var amounts []decimal.Decimal
		err := cb.db.WithContext(ctx).Model(&models.StatementLine{}).
			Where("property_id = ? AND journal_id = ? AND remote_id IN ?", cb.propertyId, cb.journalId, chunk).
			Pluck("amount", &amounts).Error
		if err != nil {
			return nil, err
		}
		for _, a := range amounts {
			actual = actual.Add(a)
		}
	}
	if actual.Equal(expected) {
		return nil, nil
	}
	return &ReconciliationWarning{JournalId: cb.journalId, Expected: expected, Actual: actual, Reason: ReasonJournalTotal}, nil
}
