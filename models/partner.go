package models

import "time"

// Partner is a guest, company or agency. Partners are shared by every property,
// so they carry no property_id. Vat is unique and is the backstop when two
// chunks try to create the same company.
type Partner struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	IsCompany     bool      `gorm:"not null;default:false" json:"is_company"`
	IsAgency      bool      `gorm:"not null;default:false" json:"is_agency"`
	SaleChannelId *int      `json:"sale_channel_id"`
	ParentId      *int      `gorm:"index" json:"parent_id"`
	Vat           *string   `gorm:"size:32;uniqueIndex" json:"vat"`
	CountryId     *int      `json:"country_id"`
	Email         string    `gorm:"size:255" json:"email"`
	Phone         string    `gorm:"size:32" json:"phone"`
	Mobile        string    `gorm:"size:32" json:"mobile"`
	Street        string    `gorm:"size:255" json:"street"`
	City          string    `gorm:"size:100" json:"city"`
	Zip           string    `gorm:"size:20" json:"zip"`
	Comment       string    `gorm:"type:text" json:"comment"`
	RemoteId      *int      `gorm:"index" json:"remote_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PartnerIdCategory is an identity document type (passport, DNI, ...).
type PartnerIdCategory struct {
	ID   int    `gorm:"primary_key" json:"id"`
	Name string `gorm:"size:100;not null" json:"name"`
	Code string `gorm:"size:20;uniqueIndex;not null" json:"code"`
}

// PartnerIdNumber is one identity document of a partner.
type PartnerIdNumber struct {
	ID         int        `gorm:"primary_key" json:"id"`
	PartnerId  int        `gorm:"index;not null" json:"partner_id"`
	CategoryId int        `gorm:"uniqueIndex:idx_partner_id_number,priority:1;not null" json:"category_id"`
	Name       string     `gorm:"uniqueIndex:idx_partner_id_number,priority:2;size:64;not null" json:"name"`
	ValidFrom  *time.Time `json:"valid_from"`
	CountryId  *int       `json:"country_id"`
}
