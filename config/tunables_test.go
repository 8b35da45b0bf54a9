package config

import (
	"testing"
	"time"
)

func TestLoadTunablesDefaults(t *testing.T) {
	for _, k := range []string{
		"MIGRATION_CHUNK_SIZE", "MIGRATION_RETENTION_DAYS", "MIGRATION_WORKERS", "MIGRATION_DISPATCH",
		"MIGRATION_FOLIO_FALLBACK_LIMIT", "MIGRATION_STATEMENT_CHAIN_LIMIT", "MIGRATION_LEGACY_FISCAL_CUTOFF",
	} {
		t.Setenv(k, "")
	}
	got := LoadTunables()
	if got.ChunkSize != 500 {
		t.Fatalf("expected chunk size 500, got %d", got.ChunkSize)
	}
	if got.RetentionDays != 2000 {
		t.Fatalf("expected retention 2000 days, got %d", got.RetentionDays)
	}
	if got.Dispatch != DispatchPool {
		t.Fatalf("expected pool dispatch, got %q", got.Dispatch)
	}
	if got.FolioFallbackLimit != 1 {
		t.Fatalf("expected fallback limit 1, got %d", got.FolioFallbackLimit)
	}
}

func TestLoadTunablesOverrides(t *testing.T) {
	t.Setenv("MIGRATION_CHUNK_SIZE", "50")
	t.Setenv("MIGRATION_RETENTION_DAYS", "0")
	t.Setenv("MIGRATION_DISPATCH", "INLINE")
	t.Setenv("MIGRATION_LEGACY_FISCAL_CUTOFF", "2022-07-01")
	t.Setenv("MIGRATION_WORKERS", "-3")

	got := LoadTunables()
	if got.ChunkSize != 50 {
		t.Fatalf("expected chunk size 50, got %d", got.ChunkSize)
	}
	if got.RetentionDays != 0 {
		t.Fatalf("expected retention guard disabled, got %d", got.RetentionDays)
	}
	if got.Dispatch != DispatchInline {
		t.Fatalf("expected inline dispatch, got %q", got.Dispatch)
	}
	if !got.LegacyFiscalCutoff.Equal(time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected cutoff %s", got.LegacyFiscalCutoff)
	}
	if got.Workers != 4 {
		t.Fatalf("negative worker count must keep the default, got %d", got.Workers)
	}
}
