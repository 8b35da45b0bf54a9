package mapper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/hotel_migration/models"
	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// OTA display names with a dedicated agency partner.
const (
	OtaBooking   = "Booking.com"
	OtaExpedia   = "Expedia"
	OtaHotelbeds = "HotelBeds"
)

// Creator login domains of channel-manager integrations.
const (
	ThinkinDomain = "@thinkin.es"
	Sh360Domain   = "@sh360.es"
)

// FolioBundle is one legacy folio with every record it owns, read in bulk by
// the orchestrator.
type FolioBundle struct {
	Folio        remote.Folio
	Reservations []remote.Reservation
	Lines        []remote.ReservationLine
	Checkins     []remote.CheckinPartner
	Services     []remote.Service
	ServiceLines []remote.ServiceLine
	Bindings     []remote.ReservationBinding
}

// MapFolio builds the local folio with its reservations, checkins, services and
// their lines. Nothing is persisted; foreign keys to the folio itself are left
// for the writer.
func MapFolio(ctx context.Context, d Deps, b FolioBundle) (*models.Folio, error) {
	f := b.Folio
	pricelistId, err := d.required(ctx, models.KindFolio, f.ID, "pricelist_id", models.KindPricelist, f.Pricelist)
	if err != nil {
		return nil, err
	}
	out := &models.Folio{
		PropertyId:      d.Settings.PropertyId,
		RemoteId:        &f.ID,
		Name:            d.Settings.FolioPrefix + f.Name,
		State:           FolioState(f.State),
		ReservationType: f.ReservationType,
		PricelistId:     &pricelistId,
		InternalComment: f.InternalComment,
		CancelledReason: f.CancelledReason,
		DateOrder:       f.DateOrder.Ptr(),
		UserId:          d.UserId(f.User),
		CreateUid:       d.UserId(f.CreateUid),
		RemoteAmount:    f.AmountTotal,
	}
	if out.ReservationType == "" {
		out.ReservationType = models.ReservationTypeNormal
	}
	if out.ReservationType == models.ReservationTypeOut {
		out.ClosureReasonId = d.Settings.DummyClosureReasonId
	}
	if err := mapFolioPartner(ctx, d, f, out); err != nil {
		return nil, err
	}
	out.SaleChannelId, out.AgencyId, err = inferChannel(ctx, d, b)
	if err != nil {
		return nil, err
	}

	for _, s := range b.Services {
		if s.SerRoomLine.IsSet() {
			continue
		}
		svc, err := MapService(ctx, d, s, serviceLinesOf(s, b.ServiceLines))
		if err != nil {
			return nil, err
		}
		out.Services = append(out.Services, *svc)
	}
	for _, r := range b.Reservations {
		if r.Folio.ID != f.ID {
			continue
		}
		res, err := MapReservation(ctx, d, b, r)
		if err != nil {
			return nil, err
		}
		res.PartnerId = out.PartnerId
		res.SaleChannelId = out.SaleChannelId
		res.AgencyId = out.AgencyId
		out.Reservations = append(out.Reservations, *res)
	}

	out.AmountTotal = FolioTotal(out)
	if out.ReservationType == models.ReservationTypeNormal && !out.AmountTotal.Round(2).Equal(f.AmountTotal.Round(2)) {
		out.Incongruent = true
		note := fmt.Sprintf("Migrated amount %s differs from legacy total %s", out.AmountTotal.StringFixed(2), f.AmountTotal.StringFixed(2))
		out.InternalComment = joinNonEmpty("\n", out.InternalComment, note)
	}
	return out, nil
}

func mapFolioPartner(ctx context.Context, d Deps, f remote.Folio, out *models.Folio) error {
	partnerId, err := d.optional(ctx, models.KindPartner, f.Partner)
	if err != nil {
		return err
	}
	out.PartnerId = partnerId
	if partnerId != nil {
		p, err := d.Catalog.Partner(ctx, *partnerId)
		if err != nil {
			return err
		}
		if p != nil {
			out.PartnerName = p.Name
			out.Email = p.Email
			out.Mobile = firstNonEmpty(p.Mobile, p.Phone)
		}
	} else if f.ReservationType == models.ReservationTypeOut {
		if d.Settings.DummyClosureReasonId != nil {
			name, err := d.Catalog.ClosureReasonName(ctx, *d.Settings.DummyClosureReasonId)
			if err != nil {
				return err
			}
			out.PartnerName = name
		}
	} else {
		out.PartnerName = f.Partner.Name
		out.Email = f.Email
		out.Mobile = firstNonEmpty(f.Mobile, f.Phone)
	}

	invoiceId, err := d.optional(ctx, models.KindPartner, f.PartnerInvoice)
	if err != nil {
		return err
	}
	if invoiceId == nil {
		invoiceId = partnerId
	}
	out.PartnerInvoiceId = invoiceId
	return nil
}

// inferChannel returns the sale channel and agency of a folio. OTA metadata wins,
// then the tour operator, then the creator's login domain, then the legacy
// channel type.
func inferChannel(ctx context.Context, d Deps, b FolioBundle) (*int, *int, error) {
	for _, r := range b.Reservations {
		if r.ExternalId == "" {
			continue
		}
		ota := r.Ota.Name
		if ota == "" {
			ota = bindingOta(b.Bindings, r.ID)
		}
		if ota == "" {
			return d.Settings.DirectChannelId, nil, nil
		}
		return d.Settings.DefaultOtaChannelId, d.otaAgency(ota), nil
	}

	if b.Folio.TourOperator.IsSet() {
		agencyId, err := d.optional(ctx, models.KindPartner, b.Folio.TourOperator)
		if err != nil || agencyId == nil {
			return nil, agencyId, err
		}
		channelId, err := d.Catalog.PartnerSaleChannel(ctx, *agencyId)
		return channelId, agencyId, err
	}

	login := strings.ToLower(d.UserLogins[b.Folio.CreateUid.ID])
	var agencyId *int
	switch {
	case strings.Contains(login, ThinkinDomain):
		agencyId = d.Settings.ThinkinAgencyId
	case strings.Contains(login, Sh360Domain):
		agencyId = d.Settings.Sh360AgencyId
	}
	if agencyId != nil {
		channelId, err := d.Catalog.PartnerSaleChannel(ctx, *agencyId)
		return channelId, agencyId, err
	}

	if id, ok := d.ChannelTypes[b.Folio.ChannelType]; ok {
		return &id, nil, nil
	}
	return nil, nil, nil
}

func (d Deps) otaAgency(name string) *int {
	switch name {
	case OtaBooking:
		return d.Settings.BookingAgencyId
	case OtaExpedia:
		return d.Settings.ExpediaAgencyId
	case OtaHotelbeds:
		return d.Settings.HotelbedsAgencyId
	}
	return nil
}

func bindingOta(bindings []remote.ReservationBinding, reservationId int) string {
	for _, bd := range bindings {
		if bd.Odoo.ID == reservationId && bd.Ota.IsSet() {
			return bd.Ota.Name
		}
	}
	return ""
}

// MapReservation maps one reservation of the bundle. Partner and channel are
// copied from the folio by MapFolio.
func MapReservation(ctx context.Context, d Deps, b FolioBundle, r remote.Reservation) (*models.Reservation, error) {
	roomTypeId, err := d.required(ctx, models.KindReservation, r.ID, "room_type_id", models.KindRoomType, r.RoomType)
	if err != nil {
		return nil, err
	}
	pricelistRef := r.Pricelist
	if !pricelistRef.IsSet() {
		pricelistRef = b.Folio.Pricelist
	}
	pricelistId, err := d.required(ctx, models.KindReservation, r.ID, "pricelist_id", models.KindPricelist, pricelistRef)
	if err != nil {
		return nil, err
	}
	roomId, err := d.optional(ctx, models.KindRoom, r.Room)
	if err != nil {
		return nil, err
	}
	boardId, err := d.optional(ctx, models.KindBoardServiceRoomType, r.BoardServiceRoom)
	if err != nil {
		return nil, err
	}

	state := ReservationState(r.State)
	out := &models.Reservation{
		PropertyId:         d.Settings.PropertyId,
		RemoteId:           &r.ID,
		RoomTypeId:         roomTypeId,
		PreferredRoomId:    roomId,
		PricelistId:        pricelistId,
		BoardServiceId:     boardId,
		State:              state,
		Checkin:            r.Checkin.Day(),
		Checkout:           r.Checkout.Day(),
		ArrivalHour:        r.ArrivalHour,
		DepartureHour:      r.DepartureHour,
		Adults:             r.Adults,
		Children:           r.Children,
		Overbooking:        r.Overbooking,
		CancelledReason:    r.CancelledReason,
		OutServiceDesc:     r.OutServiceDescription,
		OtaReservationCode: r.OtaReservationId,
		PartnerRequests:    b.Folio.CustomerNotes,
		CreateUid:          d.UserId(r.CreateUid),
	}

	for _, l := range pick(b.Lines, r.ReservationLineIds, func(l remote.ReservationLine) int { return l.ID }) {
		line, err := mapReservationLine(ctx, d, l, state)
		if err != nil {
			return nil, err
		}
		out.Lines = append(out.Lines, line)
	}

	checkins := pick(b.Checkins, r.CheckinPartnerIds, func(c remote.CheckinPartner) int { return c.ID })
	if len(checkins) > r.Adults {
		checkins = checkins[:r.Adults]
	}
	for _, c := range checkins {
		partnerId, err := d.optional(ctx, models.KindPartner, c.Partner)
		if err != nil {
			return nil, err
		}
		out.Checkins = append(out.Checkins, models.Checkin{
			PropertyId: d.Settings.PropertyId,
			RemoteId:   &c.ID,
			PartnerId:  partnerId,
			State:      CheckinState(c.State),
			Arrival:    c.EnterDate.Ptr(),
			Departure:  c.ExitDate.Ptr(),
		})
	}

	if state != models.ReservationStateCancel {
		for _, s := range pick(b.Services, r.ServiceIds, func(s remote.Service) int { return s.ID }) {
			svc, err := MapService(ctx, d, s, serviceLinesOf(s, b.ServiceLines))
			if err != nil {
				return nil, err
			}
			out.Services = append(out.Services, *svc)
		}
	}
	return out, nil
}

// mapReservationLine applies the zero-price rule: a free night of a cancelled
// reservation is a full cancellation discount, otherwise a full discount.
func mapReservationLine(ctx context.Context, d Deps, l remote.ReservationLine, state string) (models.ReservationLine, error) {
	roomId, err := d.optional(ctx, models.KindRoom, l.Room)
	if err != nil {
		return models.ReservationLine{}, err
	}
	line := models.ReservationLine{
		RemoteId:       &l.ID,
		Date:           l.Date.Day(),
		RoomId:         roomId,
		Price:          l.Price,
		Discount:       l.Discount,
		CancelDiscount: l.CancelDiscount,
	}
	if l.Price.IsZero() {
		if state == models.ReservationStateCancel {
			line.CancelDiscount = hundred
		} else {
			line.Discount = hundred
		}
	}
	return line, nil
}

// MapService maps a service with the lines that exist for it. An inactive or
// unknown product falls back to the run's dummy product.
func MapService(ctx context.Context, d Deps, s remote.Service, lines []remote.ServiceLine) (*models.Service, error) {
	productId, err := d.optional(ctx, models.KindProduct, s.Product)
	if err != nil {
		return nil, err
	}
	if productId == nil {
		productId = d.Settings.DummyProductId
	}
	if productId == nil {
		return nil, mappingError(models.KindService, s.ID, "product_id", ErrReferenceNotFound)
	}
	perDay, err := d.Catalog.ProductPerDay(ctx, *productId)
	if err != nil {
		return nil, err
	}
	out := &models.Service{
		PropertyId:     d.Settings.PropertyId,
		RemoteId:       &s.ID,
		ProductId:      *productId,
		Name:           s.Name,
		PerDay:         perDay,
		IsBoardService: s.IsBoardService,
		ProductQty:     s.ProductQty,
		PriceUnit:      s.PriceUnit,
		Discount:       s.Discount,
	}
	if out.Name == "" {
		out.Name = s.Product.Name
	}
	for _, l := range lines {
		date := l.Date.Day()
		if date.IsZero() {
			date = s.CreateDate.Day()
		}
		if date.IsZero() {
			return nil, mappingError(models.KindService, s.ID, "service_line_ids.date", ErrMissingValue)
		}
		out.Lines = append(out.Lines, models.ServiceLine{
			Date:      date,
			Qty:       l.DayQty,
			PriceUnit: l.PriceUnit,
			Discount:  s.Discount,
		})
	}
	return out, nil
}

func serviceLinesOf(s remote.Service, all []remote.ServiceLine) []remote.ServiceLine {
	return pick(all, s.ServiceLineIds, func(l remote.ServiceLine) int { return l.ID })
}

// pick returns the records whose id is in ids, in the order of ids.
func pick[T any](records []T, ids []int, id func(T) int) []T {
	if len(ids) == 0 {
		return nil
	}
	byId := make(map[int]T, len(records))
	for _, r := range records {
		byId[id(r)] = r
	}
	out := make([]T, 0, len(ids))
	for _, i := range ids {
		if r, ok := byId[i]; ok {
			out = append(out, r)
		}
	}
	return out
}

// FolioTotal sums the net amount of every night and service line of the folio.
func FolioTotal(f *models.Folio) decimal.Decimal {
	total := decimal.Zero
	for _, s := range f.Services {
		total = total.Add(serviceTotal(s))
	}
	for _, r := range f.Reservations {
		for _, l := range r.Lines {
			total = total.Add(net(l.Price, l.Discount).Mul(hundred.Sub(l.CancelDiscount)).Div(hundred))
		}
		for _, s := range r.Services {
			total = total.Add(serviceTotal(s))
		}
	}
	return total
}

func serviceTotal(s models.Service) decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(net(l.Qty.Mul(l.PriceUnit), l.Discount))
	}
	return total
}

func net(amount, discount decimal.Decimal) decimal.Decimal {
	if discount.IsZero() {
		return amount
	}
	return amount.Mul(hundred.Sub(discount)).Div(hundred)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// dayOf is the calendar day of a legacy timestamp, or fallback when unset.
func dayOf(d remote.Date, fallback time.Time) time.Time {
	if d.IsZero() {
		return fallback
	}
	return d.Day()
}
