package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityKind names a migrated entity family. It is the key of identity mappings,
// progress rows and log entries.
type EntityKind string

const (
	KindPartner              EntityKind = "partner"
	KindFolio                EntityKind = "folio"
	KindReservation          EntityKind = "reservation"
	KindCheckin              EntityKind = "checkin"
	KindService              EntityKind = "service"
	KindPayment              EntityKind = "payment"
	KindPaymentReturn        EntityKind = "payment_return"
	KindInvoice              EntityKind = "invoice"
	KindUser                 EntityKind = "user"
	KindPricelist            EntityKind = "pricelist"
	KindRoomTypeClass        EntityKind = "room_type_class"
	KindRoomType             EntityKind = "room_type"
	KindRoom                 EntityKind = "room"
	KindProduct              EntityKind = "product"
	KindBoardService         EntityKind = "board_service"
	KindBoardServiceRoomType EntityKind = "board_service_room_type"
	KindJournal              EntityKind = "journal"
	KindChannelType          EntityKind = "channel_type"
	KindInvoiceMatching      EntityKind = "invoice_matching"
	KindSpecialFields        EntityKind = "special_fields"
)

// EmbeddedKinds store remote_id on the local entity itself.
var EmbeddedKinds = map[EntityKind]bool{
	KindFolio:         true,
	KindReservation:   true,
	KindCheckin:       true,
	KindService:       true,
	KindPayment:       true,
	KindPaymentReturn: true,
	KindInvoice:       true,
}

const (
	RunStatusIdle    = "idle"
	RunStatusRunning = "running"
)

const (
	RemoteProtocolJSONRPC    = "jsonrpc"
	RemoteProtocolJSONRPCSSL = "jsonrpc+ssl"
)

// MigrationRun is one legacy-to-local connection for a property.
type MigrationRun struct {
	ID             int       `gorm:"primary_key" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	PropertyId     int       `gorm:"index;not null" json:"property_id"`
	Status         string    `gorm:"size:20;not null;default:idle" json:"status"`
	RemoteHost     string    `gorm:"size:255;not null" json:"remote_host" validate:"required"`
	RemoteProtocol string    `gorm:"size:20;not null;default:jsonrpc" json:"remote_protocol" validate:"omitempty,oneof=jsonrpc jsonrpc+ssl"`
	RemotePort     int       `gorm:"not null;default:8069" json:"remote_port"`
	RemoteDatabase string    `gorm:"size:100;not null" json:"remote_database" validate:"required"`
	RemoteUser     string    `gorm:"size:100;not null" json:"remote_user" validate:"required"`
	RemotePassword string    `gorm:"size:255;not null" json:"-"`
	DateFrom       time.Time `gorm:"not null" json:"date_from"`
	DateTo         time.Time `gorm:"not null" json:"date_to"`

	FolioPrefix            string `gorm:"size:20" json:"folio_prefix"`
	DummyClosureReasonId   *int   `json:"dummy_closure_reason_id"`
	DummyProductId         *int   `json:"dummy_product_id"`
	DefaultChannelAgencyId *int   `json:"default_channel_agency_id"`
	DefaultOtaChannelId    *int   `json:"default_ota_channel_id"`
	DirectChannelId        *int   `json:"direct_channel_id"`
	BookingAgencyId        *int   `json:"booking_agency_id"`
	ExpediaAgencyId        *int   `json:"expedia_agency_id"`
	HotelbedsAgencyId      *int   `json:"hotelbeds_agency_id"`
	ThinkinAgencyId        *int   `json:"thinkin_agency_id"`
	Sh360AgencyId          *int   `json:"sh360_agency_id"`
	BackendUserId          *int   `json:"backend_user_id"`
	AutoCreateProducts     bool   `gorm:"default:false" json:"auto_create_products"`
	AutoCreateRooms        bool   `gorm:"default:false" json:"auto_create_rooms"`

	LastImportPartners *time.Time `json:"last_import_partners"`
	LastImportFolios   *time.Time `json:"last_import_folios"`
	LastImportPayments *time.Time `json:"last_import_payments"`
	LastImportReturns  *time.Time `json:"last_import_returns"`
	LastImportInvoices *time.Time `json:"last_import_invoices"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Phases of one entity kind inside a run.
const (
	PhaseIdle        = "IDLE"
	PhasePreparing   = "PREPARING"
	PhaseChunking    = "CHUNKING"
	PhaseRunning     = "RUNNING"
	PhaseAggregating = "AGGREGATING"
	PhaseReported    = "REPORTED"
	PhaseFailed      = "FAILED"
)

// MigrationProgress holds the counters of one kind within a run.
type MigrationProgress struct {
	ID            int        `gorm:"primary_key" json:"id"`
	RunId         int        `gorm:"uniqueIndex:idx_migration_progress,priority:1;not null" json:"run_id"`
	Kind          EntityKind `gorm:"uniqueIndex:idx_migration_progress,priority:2;size:40;not null" json:"kind"`
	Phase         string     `gorm:"size:20;not null;default:IDLE" json:"phase"`
	// Batch identifies the jobs of the latest command for this kind.
	Batch         string     `gorm:"size:36" json:"batch"`
	Total         int        `json:"total"`
	Target        int        `json:"target"`
	Migrated      int        `json:"migrated"`
	Failed        int        `json:"failed"`
	Skipped       int        `json:"skipped"`
	UnmappedLocal int        `json:"unmapped_local"`
	LastCountAt   *time.Time `json:"last_count_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Complete reports total == migrated and, for kinds recorded in identity_mappings,
// that every mapping row points at a local record.
func (p MigrationProgress) Complete() bool {
	if p.Total != p.Migrated {
		return false
	}
	if !EmbeddedKinds[p.Kind] && p.UnmappedLocal > 0 {
		return false
	}
	return true
}

const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// MigrationJob tracks one chunk task. ChunkIndex -1 holds the records rejected
// while preparing the batch.
type MigrationJob struct {
	ID         int            `gorm:"primary_key" json:"id"`
	RunId      int            `gorm:"index:idx_migration_job_run;not null" json:"run_id"`
	Kind       EntityKind     `gorm:"index:idx_migration_job_run;size:40;not null" json:"kind"`
	Batch      string         `gorm:"index;size:36;not null" json:"batch"`
	TaskId     string         `gorm:"uniqueIndex;size:64;not null" json:"task_id"`
	ChunkIndex int            `json:"chunk_index"`
	JournalId  *int           `json:"journal_id"`
	RemoteIds  datatypes.JSON `gorm:"type:json" json:"remote_ids"`
	Status     string         `gorm:"size:20;not null" json:"status"`
	Attempts   int            `json:"attempts"`
	Processed  int            `json:"processed"`
	Migrated   int            `json:"migrated"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Error      string         `gorm:"type:text" json:"error"`
	StartedAt  *time.Time     `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
