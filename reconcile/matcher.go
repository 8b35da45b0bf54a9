package reconcile

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Candidate is an open payment or cash line that may settle an invoice.
// Available is always positive.
type Candidate struct {
	PaymentId       *int
	StatementLineId *int
	Date            time.Time
	Available       decimal.Decimal
}

func (c Candidate) key() int {
	if c.PaymentId != nil {
		return *c.PaymentId
	}
	if c.StatementLineId != nil {
		return -*c.StatementLineId
	}
	return 0
}

type Allocation struct {
	Candidate
	Amount decimal.Decimal
}

// MatchByAmount settles target from candidates. A candidate equal to target is
// used alone; otherwise candidates are consumed oldest first, the last one
// partially.
func MatchByAmount(target decimal.Decimal, candidates []Candidate) []Allocation {
	if !target.IsPositive() {
		return nil
	}
	ordered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Available.IsPositive() {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].key() < ordered[j].key()
	})
	for _, c := range ordered {
		if c.Available.Equal(target) {
			return []Allocation{{Candidate: c, Amount: target}}
		}
	}

	var out []Allocation
	remaining := target
	for _, c := range ordered {
		if !remaining.IsPositive() {
			break
		}
		amount := decimal.Min(c.Available, remaining)
		out = append(out, Allocation{Candidate: c, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	return out
}

// Matcher reconciles migrated invoices with the migrated payments of the same
// legacy invoice.
type Matcher struct {
	db         *gorm.DB
	propertyId int
}

func NewMatcher(db *gorm.DB, propertyId int) *Matcher {
	return &Matcher{db: db, propertyId: propertyId}
}

// MatchInvoice allocates open payments to the invoice residual. Receivable
// invoices take inbound payments and positive cash lines; payable ones take
// outbound payments and negative cash lines. Payments without a partner get
// the invoice partner.
func (m *Matcher) MatchInvoice(ctx context.Context, invoiceId int) ([]models.Reconciliation, error) {
	var recs []models.Reconciliation
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.Where("property_id = ?", m.propertyId).First(&inv, invoiceId).Error; err != nil {
			return err
		}
		if !inv.AmountResidual.IsPositive() || inv.State != models.InvoiceStatePosted {
			return nil
		}
		var remoteIds []int
		if len(inv.RemotePaymentIds) > 0 {
			if err := json.Unmarshal(inv.RemotePaymentIds, &remoteIds); err != nil {
				return err
			}
		}
		if len(remoteIds) == 0 {
			return nil
		}

		candidates, err := m.candidates(tx, inv, remoteIds)
		if err != nil {
			return err
		}
		allocations := MatchByAmount(inv.AmountResidual, candidates)
		if len(allocations) == 0 {
			return nil
		}

		settled := decimal.Zero
		for _, a := range allocations {
			if err := m.consume(tx, inv, a); err != nil {
				return err
			}
			recs = append(recs, models.Reconciliation{
				PropertyId:      m.propertyId,
				InvoiceId:       inv.ID,
				PaymentId:       a.PaymentId,
				StatementLineId: a.StatementLineId,
				Amount:          a.Amount,
			})
			settled = settled.Add(a.Amount)
		}
		if err := tx.Create(&recs).Error; err != nil {
			return err
		}

		residual := inv.AmountResidual.Sub(settled)
		state := models.PaymentStatePartial
		if !residual.IsPositive() {
			residual = decimal.Zero
			state = models.PaymentStatePaid
		}
		return tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).
			Updates(map[string]interface{}{"amount_residual": residual, "payment_state": state}).Error
	})
	return recs, err
}

func (m *Matcher) candidates(tx *gorm.DB, inv models.Invoice, remoteIds []int) ([]Candidate, error) {
	paymentType := models.PaymentTypeOutbound
	lineSign := "residual < 0"
	if inv.IsInbound() {
		paymentType = models.PaymentTypeInbound
		lineSign = "residual > 0"
	}

	var payments []models.Payment
	err := tx.Where("property_id = ? AND remote_id IN ? AND remote_leg = ? AND payment_type = ? AND state = ? AND residual_amount > 0",
		m.propertyId, remoteIds, models.LegSource, paymentType, models.PaymentStatePosted).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	var lines []models.StatementLine
	err = tx.Where("property_id = ? AND remote_id IN ? AND remote_leg = ? AND "+lineSign,
		m.propertyId, remoteIds, models.LegSource).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(payments)+len(lines))
	for i := range payments {
		p := payments[i]
		out = append(out, Candidate{PaymentId: &p.ID, Date: p.Date, Available: p.ResidualAmount})
	}
	for i := range lines {
		l := lines[i]
		out = append(out, Candidate{StatementLineId: &l.ID, Date: l.Date, Available: l.Residual.Abs()})
	}
	return out, nil
}

func (m *Matcher) consume(tx *gorm.DB, inv models.Invoice, a Allocation) error {
	if a.PaymentId != nil {
		updates := map[string]interface{}{"residual_amount": a.Available.Sub(a.Amount)}
		if inv.PartnerId != nil {
			if err := tx.Model(&models.Payment{}).Where("id = ? AND partner_id IS NULL", *a.PaymentId).
				Update("partner_id", *inv.PartnerId).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Payment{}).Where("id = ?", *a.PaymentId).Updates(updates).Error
	}

	var line models.StatementLine
	if err := tx.First(&line, *a.StatementLineId).Error; err != nil {
		return err
	}
	residual := line.Residual.Sub(a.Amount)
	if line.Residual.IsNegative() {
		residual = line.Residual.Add(a.Amount)
	}
	updates := map[string]interface{}{"residual": residual}
	if line.PartnerId == nil && inv.PartnerId != nil {
		updates["partner_id"] = *inv.PartnerId
	}
	return tx.Model(&models.StatementLine{}).Where("id = ?", line.ID).Updates(updates).Error
}
