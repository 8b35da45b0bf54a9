package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/hotel_migration/mapper"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/reconcile"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
	"github.com/shopspring/decimal"
)

var paymentPrepareFields = []string{"id", "journal_id", "destination_journal_id", "payment_type", "payment_date", "folio_id"}

// MigratePayments migrates legacy payments of migrated folios and payments
// dated inside the window. Work is grouped per local journal so cash
// statements of one journal are only written by one task.
func (e *Engine) MigratePayments(ctx context.Context) (*models.MigrationProgress, error) {
	ctx, span := e.start(ctx, "MigratePayments", models.KindPayment)
	defer span.End()
	return e.runKind(ctx, models.KindPayment, e.preparePayments)
}

func (e *Engine) paymentDomain(folioIds []int) remote.Domain {
	states := remote.NotIn("state", []string{"draft", "cancelled"})
	if len(folioIds) == 0 {
		return remote.And(states, e.window("payment_date"))
	}
	return remote.And(states, remote.Or(remote.In("folio_id", folioIds), e.window("payment_date")))
}

func rowDate(row remote.Row, field string) time.Time {
	var d remote.Date
	if raw, ok := row[field]; ok {
		_ = json.Unmarshal(raw, &d)
	}
	return d.Day()
}

func (e *Engine) preparePayments(ctx context.Context, c *chunk) (prepared, error) {
	scope := e.scope()
	folios, err := e.store.MigratedRemoteIds(ctx, scope, models.KindFolio, nil)
	if err != nil {
		return prepared{}, err
	}
	rows, err := e.reader.SearchRead(ctx, remote.ModelPayment, e.paymentDomain(folios), paymentPrepareFields,
		remote.Order("payment_date asc, id asc"))
	if err != nil {
		return prepared{}, err
	}

	// folios of in-window payments that are not migrated yet
	missing := utils.Difference(rowRefs(rows, "folio_id"), folios)
	if len(missing) > 0 {
		res, err := e.migrateFoliosInline(ctx, c, missing)
		if err != nil {
			return prepared{}, err
		}
		e.logRecord(ctx, c, models.KindPayment, 0, models.LogCodeMissingDependency, models.LogSeverityInfo,
			"migrated folios referenced by payments",
			map[string]any{"folios": len(missing), "migrated": res.Migrated, "failed": res.Failed})
	}

	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, rowInt(r, "id"))
	}
	done, err := reconcile.MigratedLegs(ctx, e.db, e.run.PropertyId, ids)
	if err != nil {
		return prepared{}, err
	}

	var cutoff time.Time
	if e.tunables.RetentionDays > 0 {
		cutoff = utils.DateOnly(e.now()).AddDate(0, 0, -e.tunables.RetentionDays)
	}

	byJournal := map[int][]int{}
	for _, r := range rows {
		id := rowInt(r, "id")
		transfer := rowString(r, "payment_type") == remote.PaymentTransfer
		if done[reconcile.LegKey{RemoteId: id, Leg: models.LegSource}] &&
			(!transfer || done[reconcile.LegKey{RemoteId: id, Leg: models.LegDestination}]) {
			continue
		}
		date := rowDate(r, "payment_date")
		if !cutoff.IsZero() && !date.IsZero() && date.Before(cutoff) {
			e.skip(ctx, c, models.KindPayment, id, fmt.Sprintf("payment dated %s is older than the retention horizon", remote.FormatDate(date)), nil)
			continue
		}

		journal, err := c.deps.Resolver.Resolve(ctx, models.KindJournal, rowRef(r, "journal_id"))
		if err != nil {
			return prepared{}, err
		}
		if !journal.IsFound() {
			e.fail(ctx, c, models.KindPayment, id, &mapper.MappingError{
				Kind: models.KindPayment, RemoteId: id, Field: "journal_id", Err: mapper.ErrJournalNotMapped,
			})
			continue
		}
		byJournal[journal.LocalId] = append(byJournal[journal.LocalId], id)

		if transfer {
			dest, err := c.deps.Resolver.Resolve(ctx, models.KindJournal, rowRef(r, "destination_journal_id"))
			if err != nil {
				return prepared{}, err
			}
			if dest.IsFound() && dest.LocalId != journal.LocalId {
				byJournal[dest.LocalId] = append(byJournal[dest.LocalId], id)
			}
		}
	}

	journals := make([]int, 0, len(byJournal))
	for j := range byJournal {
		journals = append(journals, j)
	}
	sort.Ints(journals)
	var out prepared
	for _, j := range journals {
		j := j
		out.sets = append(out.sets, workSet{JournalId: &j, RemoteIds: byJournal[j]})
	}
	return out, nil
}

// paymentJournalTask writes the legs of its payments that land on the task's
// journal: day statements for cash journals, posted payments otherwise.
func (e *Engine) paymentJournalTask(ctx context.Context, c *chunk) error {
	journalId := *c.task.JournalId
	unlock, err := utils.ObtainLock(ctx, fmt.Sprintf("hotel-migration:journal:%d", journalId), e.tunables.LockTTL)
	if err != nil {
		return err
	}
	defer unlock()

	var journal models.Journal
	if err := e.db.WithContext(ctx).Take(&journal, journalId).Error; err != nil {
		return fmt.Errorf("load journal %d: %w", journalId, err)
	}
	done, err := reconcile.MigratedLegs(ctx, e.db, e.run.PropertyId, c.task.RemoteIds)
	if err != nil {
		return err
	}

	var (
		pending  []mapper.Leg
		expected = decimal.Zero
	)
	for _, ids := range utils.Chunk(c.task.RemoteIds, e.tunables.ChunkSize) {
		payments, bad, err := remote.PaymentSpec.Read(ctx, e.reader, ids)
		if err != nil {
			return err
		}
		e.failDecoded(ctx, c, models.KindPayment, bad)

		for _, p := range payments {
			legs, missingDestination, err := mapper.PaymentLegs(ctx, c.deps, p)
			if err != nil {
				e.fail(ctx, c, models.KindPayment, p.ID, err)
				continue
			}
			if missingDestination {
				e.warn(ctx, c, models.KindPayment, p.ID, models.LogCodeMissingDependency,
					"destination journal of transfer is not mapped; only the source leg was migrated", nil)
			}
			fresh := 0
			for _, leg := range legs {
				if leg.JournalId != journalId {
					continue
				}
				expected = expected.Add(leg.Amount)
				if done[reconcile.LegKey{RemoteId: leg.RemoteId, Leg: leg.Leg}] {
					continue
				}
				pending = append(pending, leg)
				fresh++
			}
			if fresh == 0 {
				c.result.Skipped++
			}
		}
	}

	if journal.Type == models.JournalTypeCash {
		return e.postCashLegs(ctx, c, journal, pending, expected)
	}
	return e.postBankLegs(ctx, c, pending)
}

func (e *Engine) postBankLegs(ctx context.Context, c *chunk, legs []mapper.Leg) error {
	outcome := map[int]string{}
	var order []int
	for _, leg := range legs {
		if _, seen := outcome[leg.RemoteId]; !seen {
			order = append(order, leg.RemoteId)
			outcome[leg.RemoteId] = "skipped"
		}
		if outcome[leg.RemoteId] == "failed" {
			continue
		}
		_, created, err := reconcile.PostBankLeg(ctx, e.db, e.run.PropertyId, leg)
		if err != nil {
			outcome[leg.RemoteId] = "failed"
			e.fail(ctx, c, models.KindPayment, leg.RemoteId, err)
			continue
		}
		if !created {
			e.logRecord(ctx, c, models.KindPayment, leg.RemoteId, models.LogCodeDuplicateRetry, models.LogSeverityInfo,
				fmt.Sprintf("%s leg already posted", leg.Leg), nil)
			continue
		}
		outcome[leg.RemoteId] = "migrated"
	}
	for _, id := range order {
		switch outcome[id] {
		case "migrated":
			c.result.Migrated++
		case "skipped":
			c.result.Skipped++
		}
	}
	return nil
}

// postCashLegs appends one statement per day in date order and posts each
// along with its adjacent drafts. A day behind a posted statement fails its
// payments; any other failing day stops the task so later days never build on
// a broken balance.
func (e *Engine) postCashLegs(ctx context.Context, c *chunk, journal models.Journal, legs []mapper.Leg, expected decimal.Decimal) error {
	byDay := map[time.Time][]mapper.Leg{}
	for _, leg := range legs {
		day := utils.DateOnly(leg.Date)
		byDay[day] = append(byDay[day], leg)
	}
	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	book := reconcile.NewCashBook(e.db, e.run.PropertyId, journal.ID, e.tunables.StatementChainLimit)
	for _, day := range days {
		dayLegs := byDay[day]
		lines := make([]models.StatementLine, 0, len(dayLegs))
		for _, leg := range dayLegs {
			lines = append(lines, reconcile.StatementLineFromLeg(e.run.PropertyId, leg))
		}
		st, err := book.AppendDay(ctx, day, lines)
		var behind reconcile.ReconciliationWarning
		if errors.As(err, &behind) {
			// nothing was written for the day, later days still chain on the posted balance
			for id := range paymentIds(dayLegs) {
				e.fail(ctx, c, models.KindPayment, id, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("journal %s day %s: %w", journal.Name, remote.FormatDate(day), err)
		}
		if _, err := book.PostChain(ctx, st); err != nil {
			return fmt.Errorf("journal %s post %s: %w", journal.Name, st.Name, err)
		}
		c.result.Migrated += countPayments(dayLegs)
	}

	w, err := book.CheckJournalTotals(ctx, c.task.RemoteIds, expected)
	if err != nil {
		return err
	}
	if w != nil {
		e.warn(ctx, c, models.KindPayment, 0, models.LogCodeReconciliationWarning, w.Error(),
			map[string]any{"journal_id": journal.ID, "expected": w.Expected, "actual": w.Actual})
	}
	warnings, err := book.VerifyChain(ctx)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		e.warn(ctx, c, models.KindPayment, 0, models.LogCodeReconciliationWarning, w.Error(),
			map[string]any{"journal_id": journal.ID, "statement_id": w.StatementId})
	}
	return nil
}

func paymentIds(legs []mapper.Leg) map[int]bool {
	seen := map[int]bool{}
	for _, l := range legs {
		seen[l.RemoteId] = true
	}
	return seen
}

// countPayments counts distinct payments among legs; a transfer inside one
// journal has two legs but is one payment.
func countPayments(legs []mapper.Leg) int {
	return len(paymentIds(legs))
}
