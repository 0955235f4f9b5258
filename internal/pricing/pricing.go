// Package pricing computes the price breakdown of a court booking.
package pricing

import (
	"sort"

	"courtbook/internal/config"
	"courtbook/internal/models"
)

// Breakdown is a computed price. Amounts are exact; rounding to cents
// happens when they are rendered.
type Breakdown struct {
	Currency string        `json:"currency"`
	CourtFee models.Amount `json:"court_fee"`
	GuestFee models.Amount `json:"guest_fee"`
	VAT      models.Amount `json:"vat"`
	Total    models.Amount `json:"total"`
	// Fallback is set when the duration had no configured price.
	Fallback bool `json:"fallback,omitempty"`
}

type Calculator struct {
	currency       string
	durationPrices map[int]models.Amount
	fallbackPrice  models.Amount
	guestFee       models.Amount
	feeRoles       map[models.Role]bool
	vatBasisPoints int64
}

func New(currency string, durationPrices map[int]models.Amount, fallback, guestFee models.Amount, feeRoles []models.Role, vatBasisPoints int64) *Calculator {
	prices := make(map[int]models.Amount, len(durationPrices))
	for k, v := range durationPrices {
		prices[k] = v
	}
	roles := make(map[models.Role]bool, len(feeRoles))
	for _, r := range feeRoles {
		roles[r] = true
	}
	return &Calculator{
		currency:       currency,
		durationPrices: prices,
		fallbackPrice:  fallback,
		guestFee:       guestFee,
		feeRoles:       roles,
		vatBasisPoints: vatBasisPoints,
	}
}

func FromConfig(cfg config.PricingConfig) *Calculator {
	prices := make(map[int]models.Amount, len(cfg.Durations))
	for _, d := range cfg.Durations {
		prices[d.Minutes] = models.AmountFromFloat(d.Price)
	}
	return New(
		cfg.Currency,
		prices,
		models.AmountFromFloat(cfg.FallbackPrice),
		models.AmountFromFloat(cfg.GuestFee),
		cfg.FeeRoles,
		cfg.VATBasisPoints,
	)
}

// Durations lists the bookable durations in ascending order.
func (c *Calculator) Durations() []int {
	out := make([]int, 0, len(c.durationPrices))
	for d := range c.durationPrices {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func (c *Calculator) HasDuration(minutes int) bool {
	_, ok := c.durationPrices[minutes]
	return ok
}

// DurationPrice returns the configured price, or the fallback price and false.
func (c *Calculator) DurationPrice(minutes int) (models.Amount, bool) {
	if p, ok := c.durationPrices[minutes]; ok {
		return p, true
	}
	return c.fallbackPrice, false
}

// IncursGuestFee reports whether any participant's role carries the guest fee.
func (c *Calculator) IncursGuestFee(participants []models.Participant) bool {
	for _, p := range participants {
		if c.feeRoles[p.Role] {
			return true
		}
	}
	return false
}

// Calculate sums court and guest fees, then applies VAT once on that sum.
func (c *Calculator) Calculate(durationMinutes int, courtBasePrice models.Amount, participants []models.Participant) Breakdown {
	durationPrice, known := c.DurationPrice(durationMinutes)
	courtFee := durationPrice + courtBasePrice

	var guestFee models.Amount
	if c.IncursGuestFee(participants) {
		guestFee = c.guestFee
	}

	subtotal := courtFee + guestFee
	vat := subtotal.MulBasisPoints(c.vatBasisPoints)

	return Breakdown{
		Currency: c.currency,
		CourtFee: courtFee,
		GuestFee: guestFee,
		VAT:      vat,
		Total:    subtotal + vat,
		Fallback: !known,
	}
}
