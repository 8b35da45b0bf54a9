package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/mmdatafocus/hotel_migration/migration"
	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/models/reports"
	"github.com/mmdatafocus/hotel_migration/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// hotel-migrate runs operator commands of one migration run from a shell.
//
//	hotel-migrate --run 3 import
//	hotel-migrate --run 3 --dispatch inline folios --ids 10,11
//	hotel-migrate --run 3 --final all
type options struct {
	runId    int
	final    bool
	dispatch string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:           "hotel-migrate",
		Short:         "Migrate a hotel property from the legacy PMS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&opts.runId, "run", 0, "Migration run id")
	root.PersistentFlags().BoolVar(&opts.final, "final", false, "Select records dated on or after the run's end date (go-live catch-up)")
	root.PersistentFlags().StringVar(&opts.dispatch, "dispatch", "", "Chunk dispatch: inline, pool or pubsub (default from MIGRATION_DISPATCH)")

	engineCmd := func(use, short string, fn func(ctx context.Context, e *migration.Engine, args []string) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := openEngine(cmd.Context(), opts)
				if err != nil {
					return err
				}
				out, err := fn(cmd.Context(), e, args)
				if printErr := printJSON(out); printErr != nil && err == nil {
					err = printErr
				}
				return err
			},
		}
	}

	var folioIds, invoiceIds string
	folios := engineCmd("folios", "Migrate folios with reservations or services in the window", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
		ids, err := parseIds(folioIds)
		if err != nil {
			return nil, err
		}
		return e.MigrateFolios(ctx, ids)
	})
	folios.Flags().StringVar(&folioIds, "ids", "", "Comma separated legacy folio ids")

	invoices := engineCmd("invoices", "Migrate customer invoices and refunds in the window", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
		ids, err := parseIds(invoiceIds)
		if err != nil {
			return nil, err
		}
		return e.MigrateInvoices(ctx, ids)
	})
	invoices.Flags().StringVar(&invoiceIds, "ids", "", "Comma separated legacy invoice ids")

	folio := engineCmd("folio <id-or-name>", "Migrate one folio directly, failing loudly", func(ctx context.Context, e *migration.Engine, args []string) (any, error) {
		return e.MigrateFolio(ctx, args[0])
	})
	folio.Args = cobra.ExactArgs(1)

	imp := engineCmd("import [kind]", "Import users and configuration, or a single reference kind", func(ctx context.Context, e *migration.Engine, args []string) (any, error) {
		if len(args) == 0 {
			return e.ImportReferenceData(ctx)
		}
		return e.Import(ctx, models.EntityKind(args[0]))
	})
	imp.Args = cobra.MaximumNArgs(1)

	root.AddCommand(
		engineCmd("count", "Refresh legacy totals and migrated counters", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.CountRemote(ctx)
		}),
		engineCmd("progress", "Show per-kind counters", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.Progress(ctx)
		}),
		engineCmd("partners", "Migrate documented partners", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.MigratePartners(ctx)
		}),
		folios,
		folio,
		engineCmd("payments", "Migrate payments into statements and bank payments", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.MigratePayments(ctx)
		}),
		engineCmd("returns", "Migrate payment returns", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.MigratePaymentReturns(ctx)
		}),
		invoices,
		engineCmd("match-invoices", "Match posted invoices with migrated payments", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.MatchInvoicePayments(ctx)
		}),
		engineCmd("special-fields", "Copy legacy creators and creation dates", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.UpdateSpecialFieldNames(ctx)
		}),
		imp,
		engineCmd("all", "Run every command in dependency order", func(ctx context.Context, e *migration.Engine, _ []string) (any, error) {
			return e.MigrateAll(ctx)
		}),
		newExportCmd(&opts),
		newTokenCmd(),
	)
	return root
}

func openEngine(ctx context.Context, opts options) (*migration.Engine, error) {
	if opts.runId <= 0 {
		return nil, errors.New("--run is required")
	}
	db, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	t := config.LoadTunables()
	if opts.dispatch != "" {
		t.Dispatch = strings.ToLower(strings.TrimSpace(opts.dispatch))
	}
	// stdout carries command results
	extra := []migration.Option{migration.WithLogger(stderrLogger())}
	if opts.final {
		extra = append(extra, migration.WithFinalWindow())
	}
	return migration.Open(ctx, db, opts.runId, t, extra...)
}

func stderrLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(config.GetLogger().GetLevel())
	l.SetOutput(os.Stderr)
	return l
}

func connect(ctx context.Context) (*gorm.DB, error) {
	if db := config.GetDB(); db != nil {
		return db, nil
	}
	if err := config.ConnectDatabase(ctx); err != nil {
		return nil, err
	}
	return config.GetDB(), nil
}

func newExportCmd(opts *options) *cobra.Command {
	var (
		out    string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "export-logs",
		Short: "Write the run's progress and log rows to an xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			ctx := utils.WithoutPropertyScope(cmd.Context())
			progress, err := e.Progress(ctx)
			if err != nil {
				return err
			}
			logs, err := reports.ListLogs(ctx, config.GetDB(), opts.runId, reports.LogFilter{})
			if err != nil {
				return err
			}
			data, err := reports.BuildLogWorkbook(progress, logs)
			if err != nil {
				return err
			}
			if upload {
				location, err := reports.UploadLogWorkbook(ctx, opts.runId, data, time.Now())
				if err != nil {
					return err
				}
				fmt.Println(location)
				return nil
			}
			if out == "" {
				out = fmt.Sprintf("migration-log-%d.xlsx", opts.runId)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (default migration-log-<run>.xlsx)")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload to GCS_BUCKET instead of writing a file")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		operator string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator API token signed with MIGRATION_API_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := utils.JwtGenerate(operator, role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "Operator name (required)")
	cmd.Flags().StringVar(&role, "role", "operator", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func parseIds(csv string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	if v == nil {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
