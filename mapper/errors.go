package mapper

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/hotel_migration/models"
)

var (
	ErrMissingValue        = errors.New("required value is empty")
	ErrReferenceNotFound   = errors.New("referenced record has not been migrated")
	ErrAmbiguousReference  = errors.New("referenced record matches several local records")
	ErrJournalsNotAssigned = errors.New("assign billing journals before importing invoices")
	ErrJournalNotMapped    = errors.New("journal not mapped")
)

// MappingError rejects one remote record. It is fatal for that record only.
type MappingError struct {
	Kind     models.EntityKind
	RemoteId int
	Field    string
	Err      error
}

func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("map %s(%d).%s: %v", e.Kind, e.RemoteId, e.Field, e.Err)
	}
	return fmt.Sprintf("map %s(%d): %v", e.Kind, e.RemoteId, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

func mappingError(kind models.EntityKind, remoteId int, field string, err error) *MappingError {
	return &MappingError{Kind: kind, RemoteId: remoteId, Field: field, Err: err}
}

// MissingReservationsError is returned by MapInvoice when invoice lines point
// at reservations that are not migrated yet. The caller may migrate their
// folios and map the invoice again.
type MissingReservationsError struct {
	InvoiceRemoteId      int
	ReservationRemoteIds []int
}

func (e *MissingReservationsError) Error() string {
	return fmt.Sprintf("invoice %d references unmigrated reservations %v", e.InvoiceRemoteId, e.ReservationRemoteIds)
}
