package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Pricelist struct {
	ID     int    `gorm:"primary_key" json:"id"`
	Name   string `gorm:"size:255;not null" json:"name"`
	Active bool   `gorm:"not null;default:true" json:"active"`
}

type RoomTypeClass struct {
	ID          int    `gorm:"primary_key" json:"id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	DefaultCode string `gorm:"size:20" json:"default_code"`
}

type RoomType struct {
	ID          int    `gorm:"primary_key" json:"id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	DefaultCode string `gorm:"size:20" json:"default_code"`
	ClassId     *int   `json:"class_id"`
	ProductId   *int   `json:"product_id"`
}

type Room struct {
	ID         int    `gorm:"primary_key" json:"id"`
	PropertyId int    `gorm:"index;not null" json:"property_id"`
	Name       string `gorm:"size:100;not null" json:"name"`
	RoomTypeId int    `gorm:"not null" json:"room_type_id"`
	Capacity   int    `gorm:"not null;default:1" json:"capacity"`
	Active     bool   `gorm:"not null;default:true" json:"active"`
}

const (
	ConsumedOnBefore = "before"
	ConsumedOnAfter  = "after"
)

type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	DefaultCode string          `gorm:"size:64" json:"default_code"`
	PerDay      bool            `gorm:"not null;default:false" json:"per_day"`
	PerPerson   bool            `gorm:"not null;default:false" json:"per_person"`
	ConsumedOn  string          `gorm:"size:10;not null;default:before" json:"consumed_on"`
	ListPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"list_price"`
	Active      bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type BoardService struct {
	ID          int    `gorm:"primary_key" json:"id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	DefaultCode string `gorm:"size:20" json:"default_code"`
}

// BoardServiceRoomType attaches a board service to a room type, optionally per pricelist.
type BoardServiceRoomType struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BoardServiceId int             `gorm:"index;not null" json:"board_service_id"`
	RoomTypeId     int             `gorm:"index;not null" json:"room_type_id"`
	PricelistId    *int            `json:"pricelist_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

const (
	JournalTypeCash     = "cash"
	JournalTypeBank     = "bank"
	JournalTypeSale     = "sale"
	JournalTypePurchase = "purchase"
)

type Journal struct {
	ID         int    `gorm:"primary_key" json:"id"`
	PropertyId int    `gorm:"index;not null" json:"property_id"`
	Name       string `gorm:"size:255;not null" json:"name"`
	Code       string `gorm:"size:20;not null" json:"code"`
	Type       string `gorm:"size:20;not null" json:"type"`
	Active     bool   `gorm:"not null;default:true" json:"active"`
}

type Tax struct {
	ID         int             `gorm:"primary_key" json:"id"`
	Name       string          `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	TypeTaxUse string          `gorm:"size:20;not null;default:sale" json:"type_tax_use"`
}
