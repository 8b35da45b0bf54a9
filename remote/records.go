package remote

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Legacy model names.
const (
	ModelPartner              = "res.partner"
	ModelCountry              = "res.country"
	ModelIneCode              = "code.ine"
	ModelUser                 = "res.users"
	ModelFolio                = "hotel.folio"
	ModelReservation          = "hotel.reservation"
	ModelReservationLine      = "hotel.reservation.line"
	ModelReservationBinding   = "channel.hotel.reservation"
	ModelService              = "hotel.service"
	ModelServiceLine          = "hotel.service.line"
	ModelCheckinPartner       = "hotel.checkin.partner"
	ModelPayment              = "account.payment"
	ModelPaymentReturn        = "payment.return"
	ModelPaymentReturnLine    = "payment.return.line"
	ModelMoveLine             = "account.move.line"
	ModelInvoice              = "account.invoice"
	ModelInvoiceLine          = "account.invoice.line"
	ModelTax                  = "account.tax"
	ModelJournal              = "account.journal"
	ModelPricelist            = "product.pricelist"
	ModelRoomTypeClass        = "hotel.room.type.class"
	ModelRoomType             = "hotel.room.type"
	ModelRoom                 = "hotel.room"
	ModelProduct              = "product.product"
	ModelBoardService         = "hotel.board.service"
	ModelBoardServiceRoomType = "hotel.board.service.room.type"
)

type Partner struct {
	ID                     int      `json:"id" validate:"required,gt=0"`
	Name                   string   `json:"name"`
	Firstname              string   `json:"firstname"`
	Lastname               string   `json:"lastname"`
	DocumentNumber         string   `json:"document_number"`
	DocumentType           string   `json:"document_type"`
	DocumentExpeditionDate Date     `json:"document_expedition_date"`
	IsCompany              bool     `json:"is_company"`
	IsTourOperator         bool     `json:"is_tour_operator"`
	Vat                    string   `json:"vat"`
	Country                Many2One `json:"country_id"`
	CodeIne                Many2One `json:"code_ine_id"`
	Parent                 Many2One `json:"parent_id"`
	Phone                  string   `json:"phone"`
	Mobile                 string   `json:"mobile"`
	Email                  string   `json:"email"`
	Street                 string   `json:"street"`
	Street2                string   `json:"street2"`
	Zip                    string   `json:"zip"`
	City                   string   `json:"city"`
	Comment                string   `json:"comment"`
}

// DisplayName falls back to "firstname lastname" when the legacy name is empty.
func (p Partner) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	switch {
	case p.Firstname != "" && p.Lastname != "":
		return p.Firstname + " " + p.Lastname
	case p.Firstname != "":
		return p.Firstname
	}
	return p.Lastname
}

type Country struct {
	ID   int    `json:"id" validate:"required,gt=0"`
	Code string `json:"code"`
}

type IneCode struct {
	ID   int    `json:"id" validate:"required,gt=0"`
	Code string `json:"code"`
}

type User struct {
	ID     int    `json:"id" validate:"required,gt=0"`
	Login  string `json:"login" validate:"required"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

type Folio struct {
	ID               int             `json:"id" validate:"required,gt=0"`
	Name             string          `json:"name" validate:"required"`
	Partner          Many2One        `json:"partner_id"`
	PartnerInvoice   Many2One        `json:"partner_invoice_id"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone"`
	Mobile           string          `json:"mobile"`
	Pricelist        Many2One        `json:"pricelist_id"`
	TourOperator     Many2One        `json:"tour_operator_id"`
	ServiceIds       []int           `json:"service_ids"`
	RoomLines        []int           `json:"room_lines"`
	ReservationType  string          `json:"reservation_type"`
	ChannelType      string          `json:"channel_type"`
	InternalComment  string          `json:"internal_comment"`
	CustomerNotes    string          `json:"customer_notes"`
	State            string          `json:"state"`
	CancelledReason  string          `json:"cancelled_reason"`
	DateOrder        Date            `json:"date_order"`
	ConfirmationDate Date            `json:"confirmation_date"`
	CreateDate       Date            `json:"create_date"`
	User             Many2One        `json:"user_id"`
	CreateUid        Many2One        `json:"create_uid"`
	AmountTotal      decimal.Decimal `json:"amount_total"`
}

func (f *Folio) Check() error {
	if !f.Pricelist.IsSet() {
		return errors.New("pricelist_id is required")
	}
	return nil
}

type Reservation struct {
	ID                    int             `json:"id" validate:"required,gt=0"`
	Folio                 Many2One        `json:"folio_id"`
	Room                  Many2One        `json:"room_id"`
	RoomType              Many2One        `json:"room_type_id"`
	Discount              decimal.Decimal `json:"discount"`
	Checkin               Date            `json:"checkin"`
	Checkout              Date            `json:"checkout"`
	ArrivalHour           string          `json:"arrival_hour"`
	DepartureHour         string          `json:"departure_hour"`
	Pricelist             Many2One        `json:"pricelist_id"`
	BoardServiceRoom      Many2One        `json:"board_service_room_id"`
	ToAssign              bool            `json:"to_assign"`
	State                 string          `json:"state"`
	CancelledReason       string          `json:"cancelled_reason"`
	OutServiceDescription string          `json:"out_service_description"`
	Adults                int             `json:"adults" validate:"gte=0"`
	Children              int             `json:"children" validate:"gte=0"`
	Overbooking           bool            `json:"overbooking"`
	ChannelType           string          `json:"channel_type"`
	ExternalId            string          `json:"external_id"`
	Ota                   Many2One        `json:"ota_id"`
	OtaReservationId      string          `json:"ota_reservation_id"`
	ReservationLineIds    []int           `json:"reservation_line_ids"`
	CheckinPartnerIds     []int           `json:"checkin_partner_ids"`
	ServiceIds            []int           `json:"service_ids"`
	CreateUid             Many2One        `json:"create_uid"`
}

func (r *Reservation) Check() error {
	if !r.Folio.IsSet() {
		return errors.New("folio_id is required")
	}
	if r.Checkin.IsZero() || r.Checkout.IsZero() {
		return errors.New("checkin and checkout are required")
	}
	return nil
}

type ReservationLine struct {
	ID             int             `json:"id" validate:"required,gt=0"`
	Reservation    Many2One        `json:"reservation_id"`
	Room           Many2One        `json:"room_id"`
	Date           Date            `json:"date"`
	Discount       decimal.Decimal `json:"discount"`
	CancelDiscount decimal.Decimal `json:"cancel_discount"`
	Price          decimal.Decimal `json:"price"`
}

func (l *ReservationLine) Check() error {
	if !l.Reservation.IsSet() || l.Date.IsZero() {
		return errors.New("reservation_id and date are required")
	}
	return nil
}

// ReservationBinding is the channel manager binding of a reservation.
type ReservationBinding struct {
	ID               int      `json:"id" validate:"required,gt=0"`
	Odoo             Many2One `json:"odoo_id"`
	Ota              Many2One `json:"ota_id"`
	OtaReservationId string   `json:"ota_reservation_id"`
	ChannelStatus    string   `json:"channel_status"`
	ExternalId       string   `json:"external_id"`
}

type Service struct {
	ID             int             `json:"id" validate:"required,gt=0"`
	Folio          Many2One        `json:"folio_id"`
	SerRoomLine    Many2One        `json:"ser_room_line"`
	Product        Many2One        `json:"product_id"`
	Name           string          `json:"name"`
	IsBoardService bool            `json:"is_board_service"`
	Discount       decimal.Decimal `json:"discount"`
	ChannelType    string          `json:"channel_type"`
	ServiceLineIds []int           `json:"service_line_ids"`
	CreateDate     Date            `json:"create_date"`
	ProductQty     decimal.Decimal `json:"product_qty"`
	PriceUnit      decimal.Decimal `json:"price_unit"`
}

type ServiceLine struct {
	ID         int             `json:"id" validate:"required,gt=0"`
	Service    Many2One        `json:"service_id"`
	Date       Date            `json:"date"`
	CreateDate Date            `json:"create_date"`
	DayQty     decimal.Decimal `json:"day_qty"`
	PriceUnit  decimal.Decimal `json:"price_unit"`
}

type CheckinPartner struct {
	ID          int      `json:"id" validate:"required,gt=0"`
	Reservation Many2One `json:"reservation_id"`
	Partner     Many2One `json:"partner_id"`
	EnterDate   Date     `json:"enter_date"`
	ExitDate    Date     `json:"exit_date"`
	State       string   `json:"state"`
}

// Legacy payment types.
const (
	PaymentInbound  = "inbound"
	PaymentOutbound = "outbound"
	PaymentTransfer = "transfer"
)

type Payment struct {
	ID                 int             `json:"id" validate:"required,gt=0"`
	PaymentType        string          `json:"payment_type" validate:"oneof=inbound outbound transfer"`
	PartnerType        string          `json:"partner_type"`
	Partner            Many2One        `json:"partner_id"`
	Amount             decimal.Decimal `json:"amount"`
	Journal            Many2One        `json:"journal_id"`
	DestinationJournal Many2One        `json:"destination_journal_id"`
	PaymentDate        Date            `json:"payment_date"`
	Communication      string          `json:"communication"`
	Folio              Many2One        `json:"folio_id"`
	State              string          `json:"state"`
	CreateUid          Many2One        `json:"create_uid"`
	CreateDate         Date            `json:"create_date"`
}

func (p *Payment) Check() error {
	if !p.Journal.IsSet() {
		return errors.New("journal_id is required")
	}
	if p.PaymentDate.IsZero() {
		return errors.New("payment_date is required")
	}
	if p.PaymentType == PaymentTransfer && !p.DestinationJournal.IsSet() {
		return errors.New("destination_journal_id is required for transfers")
	}
	if p.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	return nil
}

type PaymentReturn struct {
	ID         int      `json:"id" validate:"required,gt=0"`
	Name       string   `json:"name"`
	Journal    Many2One `json:"journal_id"`
	Date       Date     `json:"date"`
	State      string   `json:"state"`
	LineIds    []int    `json:"line_ids"`
	CreateUid  Many2One `json:"create_uid"`
	CreateDate Date     `json:"create_date"`
}

func (r *PaymentReturn) Check() error {
	if !r.Journal.IsSet() {
		return errors.New("journal_id is required")
	}
	return nil
}

type PaymentReturnLine struct {
	ID          int             `json:"id" validate:"required,gt=0"`
	Return      Many2One        `json:"return_id"`
	Partner     Many2One        `json:"partner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	MoveLineIds []int           `json:"move_line_ids"`
}

type MoveLine struct {
	ID      int      `json:"id" validate:"required,gt=0"`
	Payment Many2One `json:"payment_id"`
}

type Invoice struct {
	ID             int             `json:"id" validate:"required,gt=0"`
	Number         string          `json:"number" validate:"required"`
	Type           string          `json:"type" validate:"oneof=out_invoice out_refund in_invoice in_refund"`
	Origin         string          `json:"origin"`
	Partner        Many2One        `json:"partner_id"`
	Journal        Many2One        `json:"journal_id"`
	User           Many2One        `json:"user_id"`
	RefundInvoice  Many2One        `json:"refund_invoice_id"`
	DateInvoice    Date            `json:"date_invoice"`
	DateDue        Date            `json:"date_due"`
	State          string          `json:"state"`
	AmountTotal    decimal.Decimal `json:"amount_total"`
	Residual       decimal.Decimal `json:"residual"`
	InvoiceLineIds []int           `json:"invoice_line_ids"`
	PaymentIds     []int           `json:"payment_ids"`
	FolioIds       []int           `json:"folio_ids"`
	CreateUid      Many2One        `json:"create_uid"`
	CreateDate     Date            `json:"create_date"`
}

func (inv *Invoice) Check() error {
	if inv.DateInvoice.IsZero() {
		return errors.New("date_invoice is required")
	}
	return nil
}

type InvoiceLine struct {
	ID                int             `json:"id" validate:"required,gt=0"`
	Invoice           Many2One        `json:"invoice_id"`
	Name              string          `json:"name"`
	Product           Many2One        `json:"product_id"`
	PriceUnit         decimal.Decimal `json:"price_unit"`
	Quantity          decimal.Decimal `json:"quantity"`
	Discount          decimal.Decimal `json:"discount"`
	InvoiceLineTaxIds []int           `json:"invoice_line_tax_ids"`
	ReservationIds    []int           `json:"reservation_ids"`
	ServiceIds        []int           `json:"service_ids"`
}

type Tax struct {
	ID   int    `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required"`
}

type Journal struct {
	ID     int    `json:"id" validate:"required,gt=0"`
	Name   string `json:"name" validate:"required"`
	Code   string `json:"code"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type Pricelist struct {
	ID     int    `json:"id" validate:"required,gt=0"`
	Name   string `json:"name" validate:"required"`
	Active bool   `json:"active"`
}

type RoomTypeClass struct {
	ID        int    `json:"id" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required"`
	CodeClass string `json:"code_class"`
	Active    bool   `json:"active"`
}

type RoomType struct {
	ID       int      `json:"id" validate:"required,gt=0"`
	Name     string   `json:"name" validate:"required"`
	CodeType string   `json:"code_type"`
	Class    Many2One `json:"class_id"`
	Product  Many2One `json:"product_id"`
	Active   bool     `json:"active"`
}

type Room struct {
	ID         int      `json:"id" validate:"required,gt=0"`
	Name       string   `json:"name" validate:"required"`
	RoomType   Many2One `json:"room_type_id"`
	SharedRoom Many2One `json:"shared_room_id"`
	Capacity   int      `json:"capacity"`
	Active     bool     `json:"active"`
}

type Product struct {
	ID          int             `json:"id" validate:"required,gt=0"`
	Name        string          `json:"name" validate:"required"`
	DefaultCode string          `json:"default_code"`
	ListPrice   decimal.Decimal `json:"list_price"`
	PerDay      bool            `json:"per_day"`
	PerPerson   bool            `json:"per_person"`
	ConsumedOn  string          `json:"consumed_on"`
	Active      bool            `json:"active"`
}

type BoardService struct {
	ID   int    `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required"`
}

type BoardServiceRoomType struct {
	ID           int             `json:"id" validate:"required,gt=0"`
	Name         string          `json:"display_name"`
	BoardService Many2One        `json:"hotel_board_service_id"`
	RoomType     Many2One        `json:"hotel_room_type_id"`
	Pricelist    Many2One        `json:"pricelist_id"`
	Amount       decimal.Decimal `json:"amount"`
}

var (
	PartnerSpec              = NewSpec[Partner](ModelPartner)
	CountrySpec              = NewSpec[Country](ModelCountry)
	IneCodeSpec              = NewSpec[IneCode](ModelIneCode)
	UserSpec                 = NewSpec[User](ModelUser)
	FolioSpec                = NewSpec[Folio](ModelFolio)
	ReservationSpec          = NewSpec[Reservation](ModelReservation)
	ReservationLineSpec      = NewSpec[ReservationLine](ModelReservationLine)
	ReservationBindingSpec   = NewSpec[ReservationBinding](ModelReservationBinding)
	ServiceSpec              = NewSpec[Service](ModelService)
	ServiceLineSpec          = NewSpec[ServiceLine](ModelServiceLine)
	CheckinPartnerSpec       = NewSpec[CheckinPartner](ModelCheckinPartner)
	PaymentSpec              = NewSpec[Payment](ModelPayment)
	PaymentReturnSpec        = NewSpec[PaymentReturn](ModelPaymentReturn)
	PaymentReturnLineSpec    = NewSpec[PaymentReturnLine](ModelPaymentReturnLine)
	MoveLineSpec             = NewSpec[MoveLine](ModelMoveLine)
	InvoiceSpec              = NewSpec[Invoice](ModelInvoice)
	InvoiceLineSpec          = NewSpec[InvoiceLine](ModelInvoiceLine)
	TaxSpec                  = NewSpec[Tax](ModelTax)
	JournalSpec              = NewSpec[Journal](ModelJournal)
	PricelistSpec            = NewSpec[Pricelist](ModelPricelist)
	RoomTypeClassSpec        = NewSpec[RoomTypeClass](ModelRoomTypeClass)
	RoomTypeSpec             = NewSpec[RoomType](ModelRoomType)
	RoomSpec                 = NewSpec[Room](ModelRoom)
	ProductSpec              = NewSpec[Product](ModelProduct)
	BoardServiceSpec         = NewSpec[BoardService](ModelBoardService)
	BoardServiceRoomTypeSpec = NewSpec[BoardServiceRoomType](ModelBoardServiceRoomType)
)
