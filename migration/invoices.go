package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/hotel_migration/identity"
	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/reconcile"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MigrateInvoices migrates open and paid customer invoices and refunds dated
// inside the window, then matches them against migrated payments. A non-empty
// ids restricts the candidates.
func (e *Engine) MigrateInvoices(ctx context.Context, ids []int) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "MigrateInvoices", models.KindInvoice)
	defer span.End()

	journals, err := e.store.MigratedCount(ctx, e.scope(), models.KindJournal)
	if err != nil {
		return nil, err
	}
	if journals == 0 {
		return nil, mapper.ErrJournalsNotAssigned
	}
	return e.runKind(ctx, models.KindInvoice, func(ctx context.Context, _ *chunk) (prepared, error) {
		return e.prepareInvoices(ctx, ids)
	})
}

func (e *Engine) invoiceDomain() remote.Domain {
	return remote.And(
		e.window("date_invoice"),
		remote.In("state", []string{"open", "paid"}),
		remote.In("type", []string{models.MoveTypeOutInvoice, models.MoveTypeOutRefund}),
	)
}

func (e *Engine) prepareInvoices(ctx context.Context, ids []int) (prepared, error) {
	domain := e.invoiceDomain()
	if len(ids) > 0 {
		domain = remote.And(domain, remote.In("id", ids))
	}
	candidates, err := e.reader.SearchIds(ctx, remote.ModelInvoice, domain, remote.Order("date_invoice asc, id asc"))
	if err != nil {
		return prepared{}, err
	}
	migrated, err := e.store.MigratedRemoteIds(ctx, e.scope(), models.KindInvoice, candidates)
	if err != nil {
		return prepared{}, err
	}
	return prepared{sets: []workSet{{RemoteIds: utils.Difference(candidates, migrated)}}}, nil
}

func (e *Engine) invoiceChunk(ctx context.Context, c *chunk) error {
	invoices, bad, err := remote.InvoiceSpec.Read(ctx, e.reader, c.task.RemoteIds)
	if err != nil {
		return err
	}
	e.failDecoded(ctx, c, models.KindInvoice, bad)
	if len(invoices) == 0 {
		return nil
	}

	lines, badLines, lineRows, err := readChildren(ctx, e.reader, remote.InvoiceLineSpec,
		remote.In("invoice_id", idsOf(invoices, func(inv remote.Invoice) int { return inv.ID })))
	if err != nil {
		return err
	}
	broken := map[int]error{}
	lineInvoice := owners(lineRows, "invoice_id")
	for _, b := range badLines {
		if inv := lineInvoice[b.RemoteId]; inv > 0 {
			broken[inv] = b
		}
	}

	var taxIds []int
	for _, l := range lines {
		taxIds = append(taxIds, l.InvoiceLineTaxIds...)
	}
	taxNames := map[int]string{}
	if len(taxIds) > 0 {
		taxes, _, err := remote.TaxSpec.Read(ctx, e.reader, utils.UniqueSlice(taxIds))
		if err != nil {
			return err
		}
		for _, t := range taxes {
			taxNames[t.ID] = t.Name
		}
	}

	done, err := e.store.MigratedRemoteIds(ctx, e.scope(), models.KindInvoice, c.task.RemoteIds)
	if err != nil {
		return err
	}
	migrated := intSet(done)
	matcher := reconcile.NewMatcher(e.db, e.run.PropertyId)

	for _, inv := range invoices {
		if migrated[inv.ID] {
			c.result.Skipped++
			continue
		}
		if berr, ok := broken[inv.ID]; ok {
			e.fail(ctx, c, models.KindInvoice, inv.ID, berr)
			continue
		}
		b := mapper.InvoiceBundle{Invoice: inv, TaxNames: taxNames}
		for _, l := range lines {
			if l.Invoice.ID == inv.ID {
				b.Lines = append(b.Lines, l)
			}
		}
		b.PartnerId, err = e.invoicePartner(ctx, c, inv)
		if err != nil {
			e.fail(ctx, c, models.KindInvoice, inv.ID, err)
			continue
		}

		out, err := e.mapInvoiceWithFallback(ctx, c, b)
		if err != nil {
			e.fail(ctx, c, models.KindInvoice, inv.ID, err)
			continue
		}
		if err := e.writeInvoice(ctx, out); err != nil {
			if utils.IsDuplicateKeyError(err) {
				c.result.Skipped++
				e.logRecord(ctx, c, models.KindInvoice, inv.ID, models.LogCodeDuplicateRetry, models.LogSeverityInfo, "invoice already written by another task", nil)
				continue
			}
			e.fail(ctx, c, models.KindInvoice, inv.ID, err)
			continue
		}
		c.result.Migrated++

		if len(inv.PaymentIds) > 0 {
			if _, err := matcher.MatchInvoice(ctx, out.ID); err != nil {
				e.warn(ctx, c, models.KindInvoice, inv.ID, models.LogCodeReconciliationWarning,
					fmt.Sprintf("payment matching failed: %v", err), nil)
			}
		}
	}
	return nil
}

// mapInvoiceWithFallback maps an invoice. When its lines point at reservations
// that are not migrated yet, their folios are migrated on the spot and the
// invoice is mapped again, at most FolioFallbackLimit times.
func (e *Engine) mapInvoiceWithFallback(ctx context.Context, c *chunk, b mapper.InvoiceBundle) (*models.Invoice, error) {
	for attempt := 0; ; attempt++ {
		out, err := mapper.MapInvoice(ctx, c.deps, b)
		var missing *mapper.MissingReservationsError
		if !errors.As(err, &missing) {
			return out, err
		}
		if attempt >= e.tunables.FolioFallbackLimit {
			return nil, &mapper.MappingError{
				Kind:     models.KindInvoice,
				RemoteId: b.Invoice.ID,
				Field:    "invoice_line_ids.reservation_ids",
				Err:      fmt.Errorf("%w: %v", mapper.ErrReferenceNotFound, missing),
			}
		}

		folioIds, err := e.foliosOfReservations(ctx, missing.ReservationRemoteIds)
		if err != nil {
			return nil, err
		}
		res, err := e.migrateFoliosInline(ctx, c, folioIds)
		if err != nil {
			return nil, err
		}
		e.logRecord(ctx, c, models.KindInvoice, b.Invoice.ID, models.LogCodeMissingDependency, models.LogSeverityInfo,
			"migrated folios referenced by invoice lines",
			map[string]any{"folio_ids": folioIds, "migrated": res.Migrated, "failed": res.Failed})
		// cached NotFound results are stale now
		c.deps.Resolver = identity.NewBatchResolver(e.store, e.scope())
	}
}

func (e *Engine) foliosOfReservations(ctx context.Context, reservationIds []int) ([]int, error) {
	rows, err := e.reader.ReadFields(ctx, remote.ModelReservation, reservationIds, []string{"id", "folio_id"})
	if err != nil {
		return nil, err
	}
	return rowRefs(rows, "folio_id"), nil
}

type rememberer interface {
	Remember(ctx context.Context, kind models.EntityKind, remoteId int, res identity.Resolution)
}

// invoicePartner returns the local partner of an invoice: the migrated one,
// else a local partner with the same VAT, else a new partner built from the
// legacy record.
func (e *Engine) invoicePartner(ctx context.Context, c *chunk, inv remote.Invoice) (*int, error) {
	if !inv.Partner.IsSet() {
		return nil, &mapper.MappingError{Kind: models.KindInvoice, RemoteId: inv.ID, Field: "partner_id", Err: mapper.ErrMissingValue}
	}
	res, err := c.deps.Resolver.Resolve(ctx, models.KindPartner, inv.Partner.ID)
	if err != nil {
		return nil, err
	}
	if id, ok := res.Lowest(); ok {
		return &id, nil
	}

	partners, bad, err := remote.PartnerSpec.Read(ctx, e.reader, []int{inv.Partner.ID})
	if err != nil {
		return nil, err
	}
	if len(bad) > 0 {
		return nil, bad[0]
	}
	if len(partners) == 0 {
		return nil, &mapper.MappingError{Kind: models.KindInvoice, RemoteId: inv.ID, Field: "partner_id", Err: mapper.ErrReferenceNotFound}
	}
	inputs, err := e.partnerInputs(ctx, partners)
	if err != nil {
		return nil, err
	}
	in := inputs[0]

	var localId int
	country, err := c.deps.Catalog.CountryByCode(ctx, in.CountryCode)
	if err != nil {
		return nil, err
	}
	byVat, err := identity.NewPartnerIndex(e.db).ByVat(ctx, in.Partner.Vat, country)
	if err != nil {
		return nil, err
	}
	if id, ok := byVat.Lowest(); ok {
		localId = id
	} else {
		p, err := mapper.PartnerForInvoice(ctx, c.deps, in)
		if err != nil {
			return nil, err
		}
		if localId, err = e.createPartner(ctx, c, p, nil); err != nil {
			return nil, err
		}
	}

	if err := e.store.RecordMapping(ctx, e.scope(), models.KindPartner, in.Partner.ID, &localId, in.Partner.DisplayName()); err != nil {
		return nil, err
	}
	if r, ok := c.deps.Resolver.(rememberer); ok {
		r.Remember(ctx, models.KindPartner, in.Partner.ID, identity.Resolved(localId))
	}
	return &localId, nil
}

// writeInvoice stores the draft with its lines and tax links, then posts it.
func (e *Engine) writeInvoice(ctx context.Context, inv *models.Invoice) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(inv).Error; err != nil {
			return err
		}
		for i := range inv.Lines {
			l := &inv.Lines[i]
			l.InvoiceId = inv.ID
			if l.FolioId == nil {
				l.FolioId = inv.FolioId
			}
			if err := tx.Omit("Taxes.*").Create(l).Error; err != nil {
				return err
			}
		}
		inv.State = models.InvoiceStatePosted
		return tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).
			Updates(map[string]interface{}{"state": models.InvoiceStatePosted}).Error
	})
}

// MatchInvoicePayments runs payment matching again over every posted invoice
// with an open residual.
func (e *Engine) MatchInvoicePayments(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "MatchInvoicePayments", models.KindInvoiceMatching)
	defer span.End()
	return e.simpleKind(ctx, models.KindInvoiceMatching, func(ctx context.Context, c *chunk) error {
		var invoices []models.Invoice
		err := e.db.WithContext(ctx).
			Where("property_id = ? AND remote_id IS NOT NULL AND state = ?", e.run.PropertyId, models.InvoiceStatePosted).
			Order("id").Find(&invoices).Error
		if err != nil {
			return err
		}
		matcher := reconcile.NewMatcher(e.db, e.run.PropertyId)
		for _, inv := range invoices {
			if !inv.AmountResidual.IsPositive() || len(inv.RemotePaymentIds) == 0 {
				continue
			}
			c.result.Processed++
			recs, err := matcher.MatchInvoice(ctx, inv.ID)
			if err != nil {
				c.result.Failed++
				e.warn(ctx, c, models.KindInvoice, utils.DereferencePtr(inv.RemoteId), models.LogCodeReconciliationWarning,
					fmt.Sprintf("payment matching failed: %v", err), nil)
				continue
			}
			if len(recs) > 0 {
				c.result.Migrated++
			}
		}
		return nil
	})
}
