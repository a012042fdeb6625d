package vehicles

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Vehicle is a customer car known to the shop.
type Vehicle struct {
	VehicleID    string          `json:"vehicle_id"`
	OwnerID      string          `json:"owner_id"`
	OwnerName    string          `json:"owner_name,omitempty"`
	OwnerEmail   string          `json:"owner_email,omitempty"`
	LicensePlate string          `json:"license_plate"`
	Brand        string          `json:"brand"`
	Model        string          `json:"model"`
	Year         *int            `json:"year,omitempty"`
	VIN          string          `json:"vin,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateInput carries a new vehicle.
type CreateInput struct {
	OwnerID      string          `json:"owner_id"`
	LicensePlate string          `json:"license_plate" validate:"required,max=20"`
	Brand        string          `json:"brand" validate:"required,max=50"`
	Model        string          `json:"model" validate:"required,max=50"`
	Year         *int            `json:"year" validate:"omitempty,min=1900,max=2100"`
	VIN          string          `json:"vin" validate:"omitempty,len=17,alphanum"`
	Metadata     json.RawMessage `json:"metadata"`
}

// NormalizePlate folds compatibility forms, drops separators and upper-cases
// the plate so that "zg 1234-ab" and "ZG1234AB" collide.
func NormalizePlate(raw string) string {
	folded := norm.NFKC.String(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.':
			continue
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
