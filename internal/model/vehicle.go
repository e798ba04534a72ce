package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidVehicle is returned when a descriptor cannot be normalized.
var ErrInvalidVehicle = eris.New("invalid vehicle")

// Canonical fuel types.
const (
	FuelPetrol   = "petrol"
	FuelDiesel   = "diesel"
	FuelElectric = "electric"
	FuelHybrid   = "hybrid"
	FuelLPG      = "lpg"
)

// Canonical transmissions.
const (
	TransmissionManual    = "manual"
	TransmissionAutomatic = "automatic"
)

// VehicleInput is one spreadsheet row's normalized descriptor as produced by
// the column mapper.
type VehicleInput struct {
	Row          int      `json:"row" yaml:"row"`
	Brand        string   `json:"brand" yaml:"brand"`
	Model        string   `json:"model" yaml:"model"`
	Year         int      `json:"year" yaml:"year"`
	Mileage      int      `json:"mileage" yaml:"mileage"`
	Fuel         string   `json:"fuel" yaml:"fuel"`
	Transmission string   `json:"transmission" yaml:"transmission"`
	AskingPrice  *float64 `json:"asking_price,omitempty" yaml:"asking_price,omitempty"`
	Color        string   `json:"color,omitempty" yaml:"color,omitempty"`
	PowerKW      *int     `json:"power_kw,omitempty" yaml:"power_kw,omitempty"`
	Variant      string   `json:"variant,omitempty" yaml:"variant,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Confidence   float64  `json:"confidence" yaml:"confidence"`
}

// Label is the human-readable "brand model" shown while a vehicle is processed.
func (v VehicleInput) Label() string {
	return strings.TrimSpace(strings.TrimSpace(v.Brand) + " " + strings.TrimSpace(v.Model))
}

// MinPopulatedFields is the number of filled-in fields a row needs to be
// treated as a vehicle rather than a blank or note line.
const MinPopulatedFields = 2

// Populated counts the descriptive fields that carry a value.
func (v VehicleInput) Populated() int {
	n := 0
	for _, s := range []string{v.Brand, v.Model, v.Fuel, v.Transmission, v.Color, v.Variant, v.Description} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	if v.Year > 0 {
		n++
	}
	if v.Mileage > 0 {
		n++
	}
	if v.AskingPrice != nil {
		n++
	}
	if v.PowerKW != nil {
		n++
	}
	return n
}

// KeepPopulated drops inputs with fewer than MinPopulatedFields values and
// numbers the rest by their position when no row was given.
func KeepPopulated(inputs []VehicleInput) []VehicleInput {
	out := make([]VehicleInput, 0, len(inputs))
	for i, in := range inputs {
		if in.Populated() < MinPopulatedFields {
			continue
		}
		if in.Row == 0 {
			in.Row = i + 1
		}
		out = append(out, in)
	}
	return out
}

// Vehicle is the normalized record sent to the valuation services.
type Vehicle struct {
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Mileage      int      `json:"mileage"`
	Fuel         string   `json:"fuel,omitempty"`
	Transmission string   `json:"transmission,omitempty"`
	AskingPrice  *float64 `json:"asking_price,omitempty"`
	Color        string   `json:"color,omitempty"`
	PowerKW      *int     `json:"power_kw,omitempty"`
	Variant      string   `json:"variant,omitempty"`
}

// Label returns "brand model".
func (v Vehicle) Label() string {
	return strings.TrimSpace(v.Brand + " " + v.Model)
}

// NormalizeVehicle validates in and produces the record used for scoring.
// now bounds the accepted build year (next model year at most).
func NormalizeVehicle(in VehicleInput, now time.Time) (Vehicle, error) {
	brand := strings.TrimSpace(in.Brand)
	mdl := strings.TrimSpace(in.Model)
	if brand == "" {
		return Vehicle{}, eris.Wrap(ErrInvalidVehicle, "brand is required")
	}
	if mdl == "" {
		return Vehicle{}, eris.Wrap(ErrInvalidVehicle, "model is required")
	}
	if in.Year < 1950 || in.Year > now.Year()+1 {
		return Vehicle{}, eris.Wrapf(ErrInvalidVehicle, "build year %d out of range", in.Year)
	}
	if in.Mileage < 0 {
		return Vehicle{}, eris.Wrapf(ErrInvalidVehicle, "negative mileage %d", in.Mileage)
	}
	if in.AskingPrice != nil && *in.AskingPrice < 0 {
		return Vehicle{}, eris.Wrap(ErrInvalidVehicle, "negative asking price")
	}

	return Vehicle{
		Brand:        titleName(brand),
		Model:        titleName(mdl),
		Year:         in.Year,
		Mileage:      in.Mileage,
		Fuel:         NormalizeFuel(in.Fuel),
		Transmission: NormalizeTransmission(in.Transmission),
		AskingPrice:  in.AskingPrice,
		Color:        strings.ToLower(strings.TrimSpace(in.Color)),
		PowerKW:      in.PowerKW,
		Variant:      strings.TrimSpace(in.Variant),
	}, nil
}

var fuelSynonyms = map[string]string{
	"petrol":     FuelPetrol,
	"gasoline":   FuelPetrol,
	"gas":        FuelPetrol,
	"benzine":    FuelPetrol,
	"benzin":     FuelPetrol,
	"essence":    FuelPetrol,
	"diesel":     FuelDiesel,
	"electric":   FuelElectric,
	"elektrisch": FuelElectric,
	"ev":         FuelElectric,
	"bev":        FuelElectric,
	"hybrid":     FuelHybrid,
	"hybride":    FuelHybrid,
	"phev":       FuelHybrid,
	"lpg":        FuelLPG,
}

// NormalizeFuel maps common fuel spellings onto the canonical set. Unknown
// values are returned folded.
func NormalizeFuel(s string) string {
	f := Fold(s)
	if canon, ok := fuelSynonyms[f]; ok {
		return canon
	}
	for key, canon := range fuelSynonyms {
		if len(key) > 3 && strings.Contains(f, key) {
			return canon
		}
	}
	return f
}

// NormalizeTransmission maps common gearbox spellings onto manual/automatic.
func NormalizeTransmission(s string) string {
	f := Fold(s)
	switch {
	case f == "":
		return ""
	case strings.HasPrefix(f, "auto"), strings.Contains(f, "automaat"), f == "dsg", f == "cvt":
		return TransmissionAutomatic
	case strings.HasPrefix(f, "man"), strings.Contains(f, "handgeschakeld"), strings.Contains(f, "schalt"):
		return TransmissionManual
	default:
		return f
	}
}
