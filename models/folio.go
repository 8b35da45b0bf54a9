package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReservationTypeNormal = "normal"
	ReservationTypeOut    = "out"
	ReservationTypeStaff  = "staff"
)

const (
	ReservationStateConfirm = "confirm"
	ReservationStateOnboard = "onboard"
	ReservationStateDone    = "done"
	ReservationStateCancel  = "cancel"
)

// Folio groups the reservations and services billed to one guest or company.
type Folio struct {
	ID               int             `gorm:"primary_key" json:"id"`
	PropertyId       int             `gorm:"uniqueIndex:idx_folio_remote,priority:1;not null" json:"property_id"`
	RemoteId         *int            `gorm:"uniqueIndex:idx_folio_remote,priority:2" json:"remote_id"`
	Name             string          `gorm:"size:64;not null" json:"name"`
	PartnerId        *int            `gorm:"index" json:"partner_id"`
	PartnerInvoiceId *int            `json:"partner_invoice_id"`
	PartnerName      string          `gorm:"size:255" json:"partner_name"`
	Email            string          `gorm:"size:255" json:"email"`
	Mobile           string          `gorm:"size:32" json:"mobile"`
	State            string          `gorm:"size:20;not null" json:"state"`
	ReservationType  string          `gorm:"size:20;not null;default:normal" json:"reservation_type"`
	ClosureReasonId  *int            `json:"closure_reason_id"`
	SaleChannelId    *int            `json:"sale_channel_id"`
	AgencyId         *int            `json:"agency_id"`
	PricelistId      *int            `json:"pricelist_id"`
	InternalComment  string          `gorm:"type:text" json:"internal_comment"`
	CancelledReason  string          `gorm:"size:100" json:"cancelled_reason"`
	DateOrder        *time.Time      `json:"date_order"`
	UserId           *int            `json:"user_id"`
	Incongruent      bool            `gorm:"not null;default:false" json:"incongruent"`
	AmountTotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_total"`
	RemoteAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remote_amount"`
	CreateUid        *int            `json:"create_uid"`
	Reservations     []Reservation   `gorm:"foreignKey:FolioId" json:"reservations"`
	Services         []Service       `gorm:"foreignKey:FolioId" json:"services"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type Reservation struct {
	ID                 int               `gorm:"primary_key" json:"id"`
	PropertyId         int               `gorm:"uniqueIndex:idx_reservation_remote,priority:1;not null" json:"property_id"`
	RemoteId           *int              `gorm:"uniqueIndex:idx_reservation_remote,priority:2" json:"remote_id"`
	FolioId            int               `gorm:"index;not null" json:"folio_id"`
	PartnerId          *int              `json:"partner_id"`
	RoomTypeId         int               `gorm:"not null" json:"room_type_id"`
	PreferredRoomId    *int              `json:"preferred_room_id"`
	PricelistId        int               `gorm:"not null" json:"pricelist_id"`
	BoardServiceId     *int              `json:"board_service_id"`
	State              string            `gorm:"size:20;not null" json:"state"`
	Checkin            time.Time         `gorm:"type:date;not null" json:"checkin"`
	Checkout           time.Time         `gorm:"type:date;not null" json:"checkout"`
	ArrivalHour        string            `gorm:"size:5" json:"arrival_hour"`
	DepartureHour      string            `gorm:"size:5" json:"departure_hour"`
	Adults             int               `gorm:"not null;default:0" json:"adults"`
	Children           int               `gorm:"not null;default:0" json:"children"`
	Overbooking        bool              `gorm:"not null;default:false" json:"overbooking"`
	CancelledReason    string            `gorm:"size:100" json:"cancelled_reason"`
	OutServiceDesc     string            `gorm:"type:text" json:"out_service_description"`
	OtaReservationCode string            `gorm:"size:100" json:"ota_reservation_code"`
	PartnerRequests    string            `gorm:"type:text" json:"partner_requests"`
	SaleChannelId      *int              `json:"sale_channel_id"`
	AgencyId           *int              `json:"agency_id"`
	CreateUid          *int              `json:"create_uid"`
	Lines              []ReservationLine `gorm:"foreignKey:ReservationId" json:"lines"`
	Checkins           []Checkin         `gorm:"foreignKey:ReservationId" json:"checkins"`
	Services           []Service         `gorm:"foreignKey:ReservationId" json:"services"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReservationLine is one night of a reservation.
type ReservationLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	ReservationId  int             `gorm:"index;not null" json:"reservation_id"`
	RemoteId       *int            `json:"remote_id"`
	Date           time.Time       `gorm:"type:date;not null" json:"date"`
	RoomId         *int            `json:"room_id"`
	Price          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	Discount       decimal.Decimal `gorm:"type:decimal(7,2);default:0" json:"discount"`
	CancelDiscount decimal.Decimal `gorm:"type:decimal(7,2);default:0" json:"cancel_discount"`
}

// Checkin is one guest registered on a reservation.
type Checkin struct {
	ID            int        `gorm:"primary_key" json:"id"`
	PropertyId    int        `gorm:"uniqueIndex:idx_checkin_remote,priority:1;not null" json:"property_id"`
	RemoteId      *int       `gorm:"uniqueIndex:idx_checkin_remote,priority:2" json:"remote_id"`
	ReservationId int        `gorm:"index;not null" json:"reservation_id"`
	FolioId       int        `gorm:"index;not null" json:"folio_id"`
	PartnerId     *int       `json:"partner_id"`
	State         string     `gorm:"size:20;not null" json:"state"`
	Arrival       *time.Time `gorm:"type:date" json:"arrival"`
	Departure     *time.Time `gorm:"type:date" json:"departure"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type Service struct {
	ID             int             `gorm:"primary_key" json:"id"`
	PropertyId     int             `gorm:"uniqueIndex:idx_service_remote,priority:1;not null" json:"property_id"`
	RemoteId       *int            `gorm:"uniqueIndex:idx_service_remote,priority:2" json:"remote_id"`
	FolioId        int             `gorm:"index;not null" json:"folio_id"`
	ReservationId  *int            `gorm:"index" json:"reservation_id"`
	ProductId      int             `gorm:"not null" json:"product_id"`
	Name           string          `gorm:"size:255" json:"name"`
	PerDay         bool            `gorm:"not null;default:false" json:"per_day"`
	IsBoardService bool            `gorm:"not null;default:false" json:"is_board_service"`
	ProductQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"product_qty"`
	PriceUnit      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_unit"`
	Discount       decimal.Decimal `gorm:"type:decimal(7,2);default:0" json:"discount"`
	Lines          []ServiceLine   `gorm:"foreignKey:ServiceId" json:"lines"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ServiceLine struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ServiceId int             `gorm:"index;not null" json:"service_id"`
	Date      time.Time       `gorm:"type:date;not null" json:"date"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	PriceUnit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price_unit"`
	Discount  decimal.Decimal `gorm:"type:decimal(7,2);default:0" json:"discount"`
}
