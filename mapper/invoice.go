package mapper

import (
	"context"
	"sort"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"github.com/shopspring/decimal"
)

// InvoiceBundle is a legacy invoice with its lines. TaxNames holds the legacy
// name of every tax the lines use; PartnerId is the local partner already
// decided by the orchestrator.
type InvoiceBundle struct {
	Invoice   remote.Invoice
	Lines     []remote.InvoiceLine
	TaxNames  map[int]string
	PartnerId *int
}

// MapInvoice builds a draft invoice with computed totals.
func MapInvoice(ctx context.Context, d Deps, b InvoiceBundle) (*models.Invoice, error) {
	inv := b.Invoice
	journal, err := d.resolve(ctx, models.KindJournal, inv.Journal)
	if err != nil {
		return nil, err
	}
	journalId, ok := journal.Lowest()
	if !ok {
		return nil, mappingError(models.KindInvoice, inv.ID, "journal_id", ErrJournalsNotAssigned)
	}

	date := inv.DateInvoice.Day()
	out := &models.Invoice{
		PropertyId:           d.Settings.PropertyId,
		RemoteId:             &inv.ID,
		Name:                 inv.Number,
		MoveType:             inv.Type,
		JournalId:            journalId,
		PartnerId:            b.PartnerId,
		Date:                 date,
		DateDue:              inv.DateDue.Ptr(),
		Ref:                  inv.Origin,
		State:                models.InvoiceStateDraft,
		PaymentState:         models.PaymentStateNotPaid,
		FiscalPositionLegacy: !d.Settings.LegacyFiscalCutoff.IsZero() && date.Before(d.Settings.LegacyFiscalCutoff),
		RemotePaymentIds:     utils.ToJSONColumn(inv.PaymentIds),
		CreateUid:            d.UserId(inv.CreateUid),
	}
	if len(inv.FolioIds) > 0 {
		if out.FolioId, err = d.optional(ctx, models.KindFolio, remote.Many2One{ID: inv.FolioIds[0]}); err != nil {
			return nil, err
		}
	}

	var missing []int
	for _, l := range b.Lines {
		line, lineMissing, err := mapInvoiceLine(ctx, d, inv.ID, l, b.TaxNames)
		if err != nil {
			return nil, err
		}
		missing = append(missing, lineMissing...)
		out.Lines = append(out.Lines, line)
	}
	if len(missing) > 0 {
		missing = utils.UniqueSlice(missing)
		sort.Ints(missing)
		return nil, &MissingReservationsError{InvoiceRemoteId: inv.ID, ReservationRemoteIds: missing}
	}

	for _, l := range out.Lines {
		out.AmountUntaxed = out.AmountUntaxed.Add(l.PriceSubtotal)
		out.AmountTotal = out.AmountTotal.Add(l.PriceTotal)
	}
	out.AmountTax = out.AmountTotal.Sub(out.AmountUntaxed)
	out.AmountResidual = out.AmountTotal
	return out, nil
}

func mapInvoiceLine(ctx context.Context, d Deps, invoiceId int, l remote.InvoiceLine, taxNames map[int]string) (models.InvoiceLine, []int, error) {
	line := models.InvoiceLine{
		Name:      l.Name,
		Quantity:  l.Quantity,
		PriceUnit: l.PriceUnit,
		Discount:  l.Discount,
	}
	var err error
	if line.ProductId, err = d.optional(ctx, models.KindProduct, l.Product); err != nil {
		return line, nil, err
	}

	var missing []int
	for _, rid := range l.ReservationIds {
		res, err := d.Resolver.Resolve(ctx, models.KindReservation, rid)
		if err != nil {
			return line, nil, err
		}
		if res.Status != identity.Found {
			missing = append(missing, rid)
			continue
		}
		if line.ReservationId == nil {
			line.ReservationId = res.Ptr()
		}
	}
	for _, sid := range l.ServiceIds {
		res, err := d.Resolver.Resolve(ctx, models.KindService, sid)
		if err != nil {
			return line, nil, err
		}
		if res.IsFound() {
			line.ServiceId = res.Ptr()
			break
		}
	}

	if len(l.InvoiceLineTaxIds) > 0 {
		names := make([]string, 0, len(l.InvoiceLineTaxIds))
		for _, id := range l.InvoiceLineTaxIds {
			if n, ok := taxNames[id]; ok {
				names = append(names, n)
			}
		}
		names = utils.UniqueSlice(names)
		taxes, err := d.Catalog.TaxesByName(ctx, names)
		if err != nil {
			return line, nil, err
		}
		if len(names) < len(utils.UniqueSlice(l.InvoiceLineTaxIds)) || len(taxes) < len(names) {
			return line, nil, mappingError(models.KindInvoice, invoiceId, "invoice_line_tax_ids", ErrReferenceNotFound)
		}
		line.Taxes = taxes
	}

	line.PriceSubtotal = net(line.Quantity.Mul(line.PriceUnit), line.Discount).Round(2)
	rate := decimal.Zero
	for _, t := range line.Taxes {
		rate = rate.Add(t.Amount)
	}
	line.PriceTotal = line.PriceSubtotal.Add(line.PriceSubtotal.Mul(rate).Div(hundred).Round(2))
	return line, missing, nil
}
