package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// IdentityMapping records one remote record of a side-table kind and the local
// record it became. LocalId is nil when the remote record was acknowledged
// without a local counterpart (for example a partner without documentation).
type IdentityMapping struct {
	ID         int            `gorm:"primary_key" json:"id"`
	RunId      int            `gorm:"uniqueIndex:idx_identity_mapping,priority:1;not null" json:"run_id"`
	Kind       EntityKind     `gorm:"uniqueIndex:idx_identity_mapping,priority:2;index:idx_identity_mapping_local,priority:1;size:40;not null" json:"kind"`
	RemoteKey  string         `gorm:"uniqueIndex:idx_identity_mapping,priority:3;size:100;not null" json:"remote_key"`
	RemoteId   int            `gorm:"index;not null;default:0" json:"remote_id"`
	LocalId    *int           `gorm:"index:idx_identity_mapping_local,priority:2" json:"local_id"`
	RemoteName string         `gorm:"size:255" json:"remote_name"`
	Metadata   datatypes.JSON `gorm:"type:json" json:"metadata"`
	LastSyncAt time.Time      `json:"last_sync_at"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemoteKeyFromId is the RemoteKey of mappings keyed by a remote id.
func RemoteKeyFromId(remoteId int) string {
	return strconv.Itoa(remoteId)
}
