package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Dispatch modes for migration chunks.
const (
	DispatchInline = "inline"
	DispatchPool   = "pool"
	DispatchPubSub = "pubsub"
)

// Tunables groups the migration knobs that used to be constants of the legacy tool.
// Values are read once with LoadTunables and passed explicitly to the engine.
type Tunables struct {
	// ChunkSize bounds how many remote ids one task fetches and writes.
	ChunkSize int
	// RetentionDays drops legacy payments dated further back than this. 0 disables the guard.
	RetentionDays int
	Workers       int
	Dispatch      string
	// FolioFallbackLimit caps just-in-time folio migrations triggered by one invoice.
	FolioFallbackLimit int
	// StatementChainLimit caps how many adjacent draft statements one posting walk visits. 0 is unbounded.
	StatementChainLimit int
	LockTTL             time.Duration
	// LegacyFiscalCutoff flags invoices dated before it with the legacy fiscal position.
	LegacyFiscalCutoff time.Time
	RemoteRPS          float64
	RemoteTimeout      time.Duration
	PubSubTopic        string
}

// DefaultTunables mirrors the values the legacy tool hard-coded.
func DefaultTunables() Tunables {
	return Tunables{
		ChunkSize:           500,
		RetentionDays:       2000,
		Workers:             4,
		Dispatch:            DispatchPool,
		FolioFallbackLimit:  1,
		StatementChainLimit: 0,
		LockTTL:             60 * time.Second,
		LegacyFiscalCutoff:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		RemoteRPS:           10,
		RemoteTimeout:       60 * time.Second,
		PubSubTopic:         "hotel-migration-chunks",
	}
}

// LoadTunables reads overrides from env:
// - MIGRATION_CHUNK_SIZE
// - MIGRATION_RETENTION_DAYS
// - MIGRATION_WORKERS
// - MIGRATION_DISPATCH (inline|pool|pubsub)
// - MIGRATION_FOLIO_FALLBACK_LIMIT
// - MIGRATION_STATEMENT_CHAIN_LIMIT
// - MIGRATION_LOCK_TTL_SECONDS
// - MIGRATION_LEGACY_FISCAL_CUTOFF (YYYY-MM-DD)
// - REMOTE_REQUESTS_PER_SECOND
// - REMOTE_TIMEOUT_SECONDS
// - MIGRATION_PUBSUB_TOPIC
func LoadTunables() Tunables {
	t := DefaultTunables()
	if n := intFromEnv("MIGRATION_CHUNK_SIZE", t.ChunkSize); n > 0 {
		t.ChunkSize = n
	}
	if n := intFromEnv("MIGRATION_RETENTION_DAYS", t.RetentionDays); n >= 0 {
		t.RetentionDays = n
	}
	if n := intFromEnv("MIGRATION_WORKERS", t.Workers); n > 0 {
		t.Workers = n
	}
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("MIGRATION_DISPATCH"))); v {
	case DispatchInline, DispatchPool, DispatchPubSub:
		t.Dispatch = v
	}
	if n := intFromEnv("MIGRATION_FOLIO_FALLBACK_LIMIT", t.FolioFallbackLimit); n >= 0 {
		t.FolioFallbackLimit = n
	}
	if n := intFromEnv("MIGRATION_STATEMENT_CHAIN_LIMIT", t.StatementChainLimit); n >= 0 {
		t.StatementChainLimit = n
	}
	if n := intFromEnv("MIGRATION_LOCK_TTL_SECONDS", 0); n > 0 {
		t.LockTTL = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("MIGRATION_LEGACY_FISCAL_CUTOFF")); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			t.LegacyFiscalCutoff = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("REMOTE_REQUESTS_PER_SECOND")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			t.RemoteRPS = f
		}
	}
	if n := intFromEnv("REMOTE_TIMEOUT_SECONDS", 0); n > 0 {
		t.RemoteTimeout = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("MIGRATION_PUBSUB_TOPIC")); v != "" {
		t.PubSubTopic = v
	}
	return t
}

// SkipMigrations reports whether AutoMigrate should be skipped at startup.
//
// Set via env:
// - SKIP_MIGRATIONS=true
func SkipMigrations() bool {
	return envBool("SKIP_MIGRATIONS")
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

func intFromEnv(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return n
}
