package models

import "time"

// Property is the local hotel a run migrates into. CompanyPartnerId is the
// partner used as counterpart of internal transfers.
type Property struct {
	ID               int       `gorm:"primary_key" json:"id"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	CompanyPartnerId *int      `json:"company_partner_id"`
	CountryId        *int      `json:"country_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Country struct {
	ID         int    `gorm:"primary_key" json:"id"`
	Name       string `gorm:"size:100;not null" json:"name"`
	Code       string `gorm:"size:2;uniqueIndex;not null" json:"code"`
	CodeAlpha3 string `gorm:"size:3;index" json:"code_alpha3"`
	InEurope   bool   `gorm:"not null;default:false" json:"in_europe"`
}

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Login     string    `gorm:"size:100;uniqueIndex;not null" json:"login"`
	Name      string    `gorm:"size:255" json:"name"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	ChannelTypeDirect   = "direct"
	ChannelTypeIndirect = "indirect"
)

type SaleChannel struct {
	ID          int    `gorm:"primary_key" json:"id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	ChannelType string `gorm:"size:20;not null;default:direct" json:"channel_type"`
	IsOnLine    bool   `gorm:"not null;default:false" json:"is_on_line"`
}

type ClosureReason struct {
	ID   int    `gorm:"primary_key" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`
}
