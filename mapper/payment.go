package mapper

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/shopspring/decimal"
)

// DefaultPaymentRef is used when a legacy payment has neither a communication nor a folio.
const DefaultPaymentRef = "Transaccion"

// Leg is a legacy payment as seen from one local journal. Amount is signed:
// money into the journal is positive.
type Leg struct {
	RemoteId           int
	Leg                string
	JournalId          int
	Amount             decimal.Decimal
	PaymentType        string
	PartnerType        string
	PartnerId          *int
	FolioId            *int
	Ref                string
	Date               time.Time
	IsInternalTransfer bool
	CreateUid          *int
}

// PaymentLegs splits a legacy payment into journal legs. Transfers yield a
// source leg and, when the destination journal is mapped, a destination leg;
// missingDestination reports the second case.
func PaymentLegs(ctx context.Context, d Deps, p remote.Payment) (legs []Leg, missingDestination bool, err error) {
	journalId, err := d.required(ctx, models.KindPayment, p.ID, "journal_id", models.KindJournal, p.Journal)
	if err != nil {
		return nil, false, err
	}
	folioId, err := d.optional(ctx, models.KindFolio, p.Folio)
	if err != nil {
		return nil, false, err
	}
	base := Leg{
		RemoteId:    p.ID,
		Leg:         models.LegSource,
		JournalId:   journalId,
		PartnerType: p.PartnerType,
		FolioId:     folioId,
		Ref:         PaymentRef(p),
		Date:        p.PaymentDate.Day(),
		CreateUid:   d.UserId(p.CreateUid),
	}
	if base.PartnerType == "" {
		base.PartnerType = models.PartnerTypeCustomer
	}

	switch p.PaymentType {
	case remote.PaymentInbound, remote.PaymentOutbound:
		base.PartnerId, err = d.optional(ctx, models.KindPartner, p.Partner)
		if err != nil {
			return nil, false, err
		}
		base.PaymentType = p.PaymentType
		base.Amount = p.Amount
		if p.PaymentType == remote.PaymentOutbound {
			base.Amount = p.Amount.Neg()
		}
		return []Leg{base}, false, nil
	}

	// internal transfer
	base.PartnerId = d.Settings.CompanyPartnerId
	base.IsInternalTransfer = true
	base.PaymentType = models.PaymentTypeOutbound
	base.Amount = p.Amount.Neg()
	legs = []Leg{base}

	dest, err := d.resolve(ctx, models.KindJournal, p.DestinationJournal)
	if err != nil {
		return nil, false, err
	}
	if !dest.IsFound() {
		return legs, true, nil
	}
	in := base
	in.Leg = models.LegDestination
	in.JournalId = dest.LocalId
	in.PaymentType = models.PaymentTypeInbound
	in.Amount = p.Amount
	return append(legs, in), false, nil
}

// PaymentRef is the communication, else the folio name, else DefaultPaymentRef.
func PaymentRef(p remote.Payment) string {
	if ref := strings.TrimSpace(p.Communication); ref != "" {
		return ref
	}
	if p.Folio.Name != "" {
		return p.Folio.Name
	}
	return DefaultPaymentRef
}

// ReturnBundle is a legacy payment return with its lines and the payment it
// gives back, when it could be traced.
type ReturnBundle struct {
	Return          remote.PaymentReturn
	Lines           []remote.PaymentReturnLine
	ReturnedPayment *remote.Payment
}

// MapPaymentReturn maps a return to one outbound customer payment on the
// mapped journal. ReturnedPaymentId is left to the writer, which knows whether
// the returned payment became a bank payment or a cash statement line.
func MapPaymentReturn(ctx context.Context, d Deps, b ReturnBundle) (*models.Payment, error) {
	r := b.Return
	journalId, err := d.required(ctx, models.KindPaymentReturn, r.ID, "journal_id", models.KindJournal, r.Journal)
	if err != nil {
		return nil, err
	}
	date := dayOf(r.Date, r.CreateDate.Day())
	if date.IsZero() {
		return nil, mappingError(models.KindPaymentReturn, r.ID, "date", ErrMissingValue)
	}

	out := &models.Payment{
		PropertyId:  d.Settings.PropertyId,
		RemoteId:    &r.ID,
		RemoteLeg:   models.LegReturn,
		JournalId:   journalId,
		PaymentType: models.PaymentTypeOutbound,
		PartnerType: models.PartnerTypeCustomer,
		Date:        date,
		Ref:         r.Name,
		State:       models.PaymentStatePosted,
		CreateUid:   d.UserId(r.CreateUid),
	}
	var refs []string
	for _, l := range b.Lines {
		out.Amount = out.Amount.Add(l.Amount)
		if l.Reference != "" {
			refs = append(refs, l.Reference)
		}
		if out.PartnerId == nil {
			if out.PartnerId, err = d.optional(ctx, models.KindPartner, l.Partner); err != nil {
				return nil, err
			}
		}
	}
	if len(refs) > 0 {
		out.Ref = strings.Join(refs, ", ")
	}
	out.ResidualAmount = out.Amount

	if rp := b.ReturnedPayment; rp != nil {
		if out.FolioId, err = d.optional(ctx, models.KindFolio, rp.Folio); err != nil {
			return nil, err
		}
		if out.PartnerId == nil {
			if out.PartnerId, err = d.optional(ctx, models.KindPartner, rp.Partner); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
