package models

import "time"

// Detail keys produced by the scraper's detail-page extraction. The scraped
// site labels attributes in Portuguese; the keys are carried verbatim in the
// raw CSV and mapped to typed fields during cleaning.
const (
	DetailYear         = "ano"
	DetailMileage      = "quilometragem"
	DetailPower        = "potência_do_motor"
	DetailDoors        = "portas"
	DetailPlateDigit   = "final_de_placa"
	DetailBrand        = "marca"
	DetailModel        = "modelo"
	DetailCategory     = "categoria"
	DetailColor        = "cor"
	DetailFuel         = "combustível"
	DetailTransmission = "câmbio"
	DetailSteering     = "direção"
	DetailVehicleType  = "tipo_de_veículo"
	DetailGNVKit       = "possui_kit_gnv"
	DetailCity         = "city"
	DetailState        = "state"
	DetailNeighborhood = "neighborhood"
	DetailZipCode      = "zip_code"
)

// RawListing holds unprocessed scraped data directly from the browser.
// List-page fields are fixed; everything scraped from the detail page lands in
// Details under its normalized attribute key, including the free-form option
// flags. This is written to CSV before any cleaning or transformation.
type RawListing struct {
	URL        string
	Title      string
	PriceText  string
	KmText     string
	ColorText  string
	EngineText string
	Details    map[string]string
	ScrapedAt  time.Time
}

// Detail returns the detail-page attribute for key, or "" when absent.
func (r *RawListing) Detail(key string) string {
	if r.Details == nil {
		return ""
	}
	return r.Details[key]
}

// SetDetail stores a detail-page attribute, allocating the map on first use.
func (r *RawListing) SetDetail(key, value string) {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
}

// Listing is the cleaned, validated record produced by the ETL stage.
// Pointer fields are nullable: nil means the raw value was absent or failed
// validation. A Listing only exists if Price, Year and State resolved; all
// other nulls are tolerated downstream.
type Listing struct {
	URL   string
	Title string

	Price      float64
	Year       int
	Mileage    *float64
	EngineSize *float64
	Power      *float64
	Doors      *int
	PlateDigit *float64

	Brand        *string
	Model        *string
	Category     *string
	Color        *string
	Fuel         *string
	Transmission *string
	Steering     *string
	VehicleType  *string
	GNVKit       *string

	State        string
	City         *string
	Neighborhood *string
	ZipCode      *string

	// Options holds the boolean amenity flags that survived cleaning
	// (e.g. "bancos_de_couro", "teto_solar").
	Options map[string]bool
}

// Option returns the amenity flag value, false when the flag is absent.
func (l *Listing) Option(name string) bool {
	if l.Options == nil {
		return false
	}
	return l.Options[name]
}
