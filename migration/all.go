package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/models"
)

// ErrAsyncDispatcher is returned by MigrateAll when chunks would be queued
// elsewhere; later kinds depend on earlier ones being written.
var ErrAsyncDispatcher = errors.New("migrate all needs a synchronous dispatcher")

type step struct {
	kind models.EntityKind
	run  func(ctx context.Context) (*models.MigrationProgress, error)
}

func (e *Engine) referenceSteps() []step {
	return []step{
		{models.KindPricelist, e.ImportPricelists},
		{models.KindRoomTypeClass, e.ImportRoomTypeClasses},
		{models.KindRoomType, e.ImportRoomTypes},
		{models.KindRoom, e.ImportRooms},
		{models.KindProduct, e.ImportProducts},
		{models.KindBoardService, e.ImportBoardServices},
		{models.KindBoardServiceRoomType, e.ImportBoardServiceRoomTypes},
		{models.KindJournal, e.ImportJournals},
		{models.KindChannelType, e.ImportChannelTypes},
	}
}

// Import runs the reference import of one kind.
func (e *Engine) Import(ctx context.Context, kind models.EntityKind) (*models.MigrationProgress, error) {
	if kind == models.KindUser {
		return e.ImportUsers(ctx)
	}
	for _, s := range e.referenceSteps() {
		if s.kind == kind {
			return s.run(ctx)
		}
	}
	return nil, fmt.Errorf("%w: no reference import for %q", ErrUnknownKind, kind)
}

var ErrUnknownKind = errors.New("unknown entity kind")

// ImportReferenceData imports users and every configuration kind in
// dependency order, stopping at the first failing kind.
func (e *Engine) ImportReferenceData(ctx context.Context) ([]models.MigrationProgress, error) {
	steps := append([]step{{models.KindUser, e.ImportUsers}}, e.referenceSteps()...)
	return e.runSteps(ctx, steps)
}

// MigrateAll runs every command of the run in dependency order: users,
// partners, configuration, folios, payments, returns, invoices and finally the
// audit fields.
func (e *Engine) MigrateAll(ctx context.Context) ([]models.MigrationProgress, error) {
	if e.dispatcher.Async() {
		return nil, ErrAsyncDispatcher
	}
	steps := []step{
		{models.KindUser, e.ImportUsers},
		{models.KindPartner, e.MigratePartners},
	}
	steps = append(steps, e.referenceSteps()...)
	steps = append(steps,
		step{models.KindFolio, func(ctx context.Context) (*models.MigrationProgress, error) { return e.MigrateFolios(ctx, nil) }},
		step{models.KindPayment, e.MigratePayments},
		step{models.KindPaymentReturn, e.MigratePaymentReturns},
		step{models.KindInvoice, func(ctx context.Context) (*models.MigrationProgress, error) { return e.MigrateInvoices(ctx, nil) }},
		step{models.KindSpecialFields, e.UpdateSpecialFieldNames},
	)
	return e.runSteps(ctx, steps)
}

func (e *Engine) runSteps(ctx context.Context, steps []step) ([]models.MigrationProgress, error) {
	out := make([]models.MigrationProgress, 0, len(steps))
	for _, s := range steps {
		p, err := s.run(ctx)
		if err != nil {
			config.LogError(e.logger, moduleName, "runSteps", "step failed", map[string]any{"run_id": e.run.ID, "kind": s.kind}, err)
			return out, fmt.Errorf("%s: %w", s.kind, err)
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}
