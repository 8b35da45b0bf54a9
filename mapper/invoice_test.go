package mapper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceBundle() mapper.InvoiceBundle {
	return mapper.InvoiceBundle{
		Invoice: remote.Invoice{
			ID: 800, Number: "FAC/2022/0001", Type: models.MoveTypeOutInvoice, Origin: "F/9",
			Journal: ref(1, "Sales"), DateInvoice: day(2022, 12, 31), FolioIds: []int{9}, PaymentIds: []int{55},
		},
		Lines: []remote.InvoiceLine{{
			ID: 1, Name: "Night", Quantity: decimal.NewFromInt(2), PriceUnit: decimal.NewFromInt(50),
			Discount: decimal.NewFromInt(10), InvoiceLineTaxIds: []int{7}, ReservationIds: []int{200},
		}},
		TaxNames:  map[int]string{7: "IVA 10%"},
		PartnerId: intPtr(15),
	}
}

func invoiceDeps() (mapper.Deps, *fakeCatalog) {
	r := fakeResolver{}.
		set(models.KindJournal, 1, 101).
		set(models.KindFolio, 9, 900).
		set(models.KindReservation, 200, 2000)
	cat := newFakeCatalog()
	cat.taxes["IVA 10%"] = models.Tax{ID: 3, Name: "IVA 10%", Amount: decimal.NewFromInt(10)}
	return newDeps(r, cat), cat
}

func TestMapInvoice(t *testing.T) {
	d, _ := invoiceDeps()
	inv, err := mapper.MapInvoice(context.Background(), d, invoiceBundle())
	require.NoError(t, err)

	assert.Equal(t, "FAC/2022/0001", inv.Name)
	assert.Equal(t, "F/9", inv.Ref)
	assert.Equal(t, 101, inv.JournalId)
	assert.Equal(t, 900, *inv.FolioId)
	assert.Equal(t, models.InvoiceStateDraft, inv.State)
	assert.True(t, inv.FiscalPositionLegacy)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, 2000, *inv.Lines[0].ReservationId)
	assert.Equal(t, "90", inv.AmountUntaxed.String())
	assert.Equal(t, "9", inv.AmountTax.String())
	assert.Equal(t, "99", inv.AmountTotal.String())
	assert.True(t, inv.AmountResidual.Equal(inv.AmountTotal))
	assert.JSONEq(t, "[55]", string(inv.RemotePaymentIds))
}

func TestMapInvoiceAfterCutoffIsNotLegacy(t *testing.T) {
	d, _ := invoiceDeps()
	b := invoiceBundle()
	b.Invoice.DateInvoice = day(2023, 1, 1)
	inv, err := mapper.MapInvoice(context.Background(), d, b)
	require.NoError(t, err)
	assert.False(t, inv.FiscalPositionLegacy)
}

func TestMapInvoiceRequiresJournals(t *testing.T) {
	d, _ := invoiceDeps()
	b := invoiceBundle()
	b.Invoice.Journal = ref(2, "Unassigned")
	_, err := mapper.MapInvoice(context.Background(), d, b)
	require.ErrorIs(t, err, mapper.ErrJournalsNotAssigned)
	assert.Contains(t, err.Error(), "assign billing journals before importing invoices")
}

func TestMapInvoiceMissingReservations(t *testing.T) {
	d, _ := invoiceDeps()
	b := invoiceBundle()
	b.Lines = append(b.Lines, remote.InvoiceLine{ID: 2, ReservationIds: []int{202, 201}}, remote.InvoiceLine{ID: 3, ReservationIds: []int{201}})
	_, err := mapper.MapInvoice(context.Background(), d, b)

	var missing *mapper.MissingReservationsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 800, missing.InvoiceRemoteId)
	assert.Equal(t, []int{201, 202}, missing.ReservationRemoteIds)
}

func TestMapInvoiceUnknownTax(t *testing.T) {
	d, cat := invoiceDeps()
	delete(cat.taxes, "IVA 10%")
	_, err := mapper.MapInvoice(context.Background(), d, invoiceBundle())
	var me *mapper.MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "invoice_line_tax_ids", me.Field)
}
