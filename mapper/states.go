package mapper

import "github.com/mmdatafocus/hotel_migration/models"

// Legacy to local state tables. Values missing from a table pass through.
var (
	folioStates = map[string]string{
		"sale": models.ReservationStateConfirm,
	}
	reservationStates = map[string]string{
		"cancelled": models.ReservationStateCancel,
		"booking":   models.ReservationStateOnboard,
	}
	checkinStates = map[string]string{
		"cancelled": models.ReservationStateCancel,
		"booking":   models.ReservationStateOnboard,
	}
)

func translate(table map[string]string, state string) string {
	if v, ok := table[state]; ok {
		return v
	}
	return state
}

func FolioState(s string) string       { return translate(folioStates, s) }
func ReservationState(s string) string { return translate(reservationStates, s) }
func CheckinState(s string) string     { return translate(checkinStates, s) }
