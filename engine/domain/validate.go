package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	yearRegex = regexp.MustCompile(`^(\d{4}|\?)$`)
	hexRegex  = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

const maxFieldLength = 64

// ValidateIdentity checks a vendor-edited identity before it replaces the
// analyzed one. Blank make and model are allowed; the classifier treats them
// as unknown.
func ValidateIdentity(v VehicleIdentity) error {
	year := strings.TrimSpace(v.Year)
	if year != "" && !yearRegex.MatchString(year) {
		return NewValidationError("year", v.Year, ErrYearFormat)
	}
	for field, value := range map[string]string{
		"make": v.Make, "model": v.Model, "trim": v.Trim, "color.name": v.Color.Name,
	} {
		if utf8.RuneCountInString(value) > maxFieldLength {
			return NewValidationError(field, value, ErrFieldTooLong)
		}
	}
	if v.Color.Hex != "" && !hexRegex.MatchString(v.Color.Hex) {
		return NewValidationError("color.hex", v.Color.Hex, ErrInvalidColor)
	}
	return nil
}

// ValidateOrder checks an order before it is attached to a car.
func ValidateOrder(o Order) error {
	if o.StyleID == "" {
		return NewValidationError("style_id", o.StyleID, ErrInvalidOrder)
	}
	if strings.TrimSpace(o.Product) == "" {
		return NewValidationError("product", o.Product, ErrInvalidOrder)
	}
	if o.Quantity <= 0 {
		return NewValidationError("quantity", fmt.Sprintf("%d", o.Quantity), ErrInvalidOrder)
	}
	if o.PriceCents < 0 {
		return NewValidationError("price_cents", fmt.Sprintf("%d", o.PriceCents), ErrInvalidOrder)
	}
	switch o.Status {
	case "", OrderPending:
	case OrderPaid:
		if strings.TrimSpace(o.PaymentRef) == "" {
			return NewValidationError("payment_ref", o.PaymentRef, ErrInvalidOrder)
		}
	default:
		return NewValidationError("status", string(o.Status), ErrInvalidOrder)
	}
	return nil
}
