package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or alters every table the migration engine writes.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&MigrationRun{}, &MigrationProgress{}, &MigrationJob{}, &IdentityMapping{}, &MigrationLog{},
		&Property{}, &Country{}, &User{}, &SaleChannel{}, &ClosureReason{},
		&Partner{}, &PartnerIdCategory{}, &PartnerIdNumber{},
		&Pricelist{}, &RoomTypeClass{}, &RoomType{}, &Room{}, &Product{}, &BoardService{}, &BoardServiceRoomType{},
		&Journal{}, &Tax{},
		&Folio{}, &Reservation{}, &ReservationLine{}, &Checkin{}, &Service{}, &ServiceLine{},
		&Payment{}, &CashStatement{}, &StatementLine{},
		&Invoice{}, &InvoiceLine{}, &Reconciliation{},
	)
}
