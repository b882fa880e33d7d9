package services

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/stat"

	"olx-price-pipeline/models"
	"olx-price-pipeline/utils"
)

// ErrEmptyDataset is returned when a stage receives no rows to work on.
var ErrEmptyDataset = errors.New("empty dataset")

// Plausibility ranges. Values outside become null and, for price and year,
// eventually drop the row.
const (
	minYear    = 1980
	minPrice   = 1000
	maxPrice   = 1000000
	maxMileage = 1000000
	minEngine  = 0.5
	maxEngine  = 10
)

// validStates is the fixed set of Brazilian two-letter state codes.
var validStates = map[string]struct{}{
	"AC": {}, "AL": {}, "AM": {}, "AP": {}, "BA": {}, "CE": {}, "DF": {},
	"ES": {}, "GO": {}, "MA": {}, "MG": {}, "MS": {}, "MT": {}, "PA": {},
	"PB": {}, "PE": {}, "PI": {}, "PR": {}, "RJ": {}, "RN": {}, "RO": {},
	"RR": {}, "RS": {}, "SC": {}, "SE": {}, "SP": {}, "TO": {},
}

var (
	// yearTokenRegexp captures a 4-digit year embedded in the listing title
	yearTokenRegexp = regexp.MustCompile(`\b(\d{4})\b`)
	// numberTokenRegexp captures the first numeric token of a dirty field
	numberTokenRegexp = regexp.MustCompile(`\d+(?:\.\d+)?`)
	// intTokenRegexp captures the first integer token (door counts)
	intTokenRegexp = regexp.MustCompile(`\d+`)

	// priceStripper removes currency markers and thousands separators; the
	// remaining comma is the decimal separator and is converted afterwards.
	priceStripper = strings.NewReplacer("R", "", "r", "", "$", "", ".", "", " ", "", " ", "")
	// mileageStripper removes the km unit and thousands separators
	mileageStripper = strings.NewReplacer("k", "", "m", "", ".", "", " ", "")
)

// textSentinels are string spellings of "no value" that must become null.
var textSentinels = map[string]struct{}{
	"nan": {}, "None": {}, "NULL": {}, "": {},
}

// booleanTokens is the value domain that marks an option column as boolean.
var booleanTokens = map[string]bool{
	"True": true, "true": true, "1": true,
	"False": false, "false": false, "0": false, "": false,
}

// knownDetailKeys are detail-page attributes handled by a dedicated cleaning
// rule. Every other detail key is an option-flag candidate.
var knownDetailKeys = map[string]struct{}{
	models.DetailYear: {}, models.DetailMileage: {}, models.DetailPower: {},
	models.DetailDoors: {}, models.DetailPlateDigit: {}, models.DetailBrand: {},
	models.DetailModel: {}, models.DetailCategory: {}, models.DetailColor: {},
	models.DetailFuel: {}, models.DetailTransmission: {}, models.DetailSteering: {},
	models.DetailVehicleType: {}, models.DetailGNVKit: {}, models.DetailCity: {},
	models.DetailState: {}, models.DetailNeighborhood: {}, models.DetailZipCode: {},
}

// CleanStats collects the per-rule diagnostics reported after each sub-rule.
// The counts are informational only and never affect control flow.
type CleanStats struct {
	Input                  int
	EmptyURLDropped        int
	DuplicatesDropped      int
	YearOutOfRange         int
	YearImputed            int
	PriceInvalid           int
	MileageInvalid         int
	EngineInvalid          int
	PowerInvalid           int
	DoorsInvalid           int
	StatesRecovered        int
	StateUnresolvedDropped int
	MissingCriticalDropped int
	NonBooleanOptions      []string
	ConstantColumnsDropped []string
	Output                 int
}

// Cleaner transforms RawListings into clean, validated Listings.
// The rules run in a fixed order because later rules depend on earlier
// cleaned values (the state fallback reads the already-lowercased city).
type Cleaner struct {
	logger      *utils.Logger
	currentYear int
}

// NewCleaner creates a Cleaner. currentYear bounds the plausible year range.
func NewCleaner(logger *utils.Logger, currentYear int) *Cleaner {
	return &Cleaner{logger: logger, currentYear: currentYear}
}

// workItem carries one listing through the cleaning passes together with its
// still-raw option values.
type workItem struct {
	raw     *models.RawListing
	out     *models.Listing
	yearOK  bool
	priceOK bool
}

// Clean processes raw listings and returns cleaned records plus diagnostics.
// An empty input is a fatal, externally visible error.
func (c *Cleaner) Clean(raw []*models.RawListing) ([]*models.Listing, *CleanStats, error) {
	if len(raw) == 0 {
		return nil, nil, ErrEmptyDataset
	}

	stats := &CleanStats{Input: len(raw)}

	items := c.deduplicate(raw, stats)
	c.logger.Info("[cleaner] After dedupe: %d rows (dropped %d duplicates, %d empty URLs)",
		len(items), stats.DuplicatesDropped, stats.EmptyURLDropped)

	c.cleanYears(items, stats)
	c.logger.Info("[cleaner] Year: %d out of range, %d imputed with batch median",
		stats.YearOutOfRange, stats.YearImputed)

	c.cleanNumerics(items, stats)
	c.logger.Info("[cleaner] Numerics: %d invalid prices, %d invalid mileages, %d invalid engines, %d invalid powers, %d invalid doors",
		stats.PriceInvalid, stats.MileageInvalid, stats.EngineInvalid, stats.PowerInvalid, stats.DoorsInvalid)

	c.cleanText(items)
	c.logger.Info("[cleaner] Text columns normalized")

	optionKeys := c.cleanOptions(items, stats)
	c.logger.Info("[cleaner] Options: %d boolean columns, %d non-boolean dropped",
		len(optionKeys), len(stats.NonBooleanOptions))

	items = c.cleanLocation(items, stats)
	c.logger.Info("[cleaner] Location: %d states recovered from city, %d rows dropped with unresolved state",
		stats.StatesRecovered, stats.StateUnresolvedDropped)

	items = c.dropMissingCritical(items, stats)
	c.logger.Info("[cleaner] Dropped %d rows missing price or year", stats.MissingCriticalDropped)

	c.dropConstantOptions(items, optionKeys, stats)
	if len(stats.ConstantColumnsDropped) > 0 {
		c.logger.Info("[cleaner] Dropped %d constant option columns: %s",
			len(stats.ConstantColumnsDropped), strings.Join(stats.ConstantColumnsDropped, ", "))
	}

	cleaned := make([]*models.Listing, 0, len(items))
	for _, it := range items {
		cleaned = append(cleaned, it.out)
	}

	stats.Output = len(cleaned)
	c.logger.Info("[cleaner] Cleaned %d → %d listings", stats.Input, stats.Output)
	return cleaned, stats, nil
}

// deduplicate applies rule 1: keep-first dedupe by source URL. Listings
// without a URL cannot be deduplicated and are dropped outright.
func (c *Cleaner) deduplicate(raw []*models.RawListing, stats *CleanStats) []*workItem {
	seen := make(map[string]struct{}, len(raw))
	items := make([]*workItem, 0, len(raw))

	for _, r := range raw {
		url := strings.TrimSpace(r.URL)
		if url == "" {
			stats.EmptyURLDropped++
			continue
		}
		if _, dup := seen[url]; dup {
			stats.DuplicatesDropped++
			continue
		}
		seen[url] = struct{}{}

		items = append(items, &workItem{
			raw: r,
			out: &models.Listing{URL: url, Title: normaliseText(r.Title)},
		})
	}
	return items
}

// cleanYears applies rule 2: numeric year, title fallback, range check,
// median imputation over the in-range years of this batch.
func (c *Cleaner) cleanYears(items []*workItem, stats *CleanStats) {
	years := make([]*int, len(items))
	var valid []float64

	for i, it := range items {
		y, inRange := c.parseYear(it.raw)
		if y != nil && !inRange {
			stats.YearOutOfRange++
			y = nil
		}
		years[i] = y
		if y != nil {
			valid = append(valid, float64(*y))
		}
	}

	median := 0
	if len(valid) > 0 {
		sort.Float64s(valid)
		median = int(math.Round(stat.Quantile(0.5, stat.Empirical, valid, nil)))
	}

	for i, it := range items {
		switch {
		case years[i] != nil:
			it.out.Year = *years[i]
			it.yearOK = true
		case len(valid) > 0:
			it.out.Year = median
			it.yearOK = true
			stats.YearImputed++
		default:
			// No valid year anywhere in the batch: nothing to impute from,
			// the row is dropped by the critical-column rule.
			it.yearOK = false
		}
	}
}

// parseYear extracts the year from the detail field or, failing that, from a
// 4-digit token in the title. The second return reports the range check.
func (c *Cleaner) parseYear(r *models.RawListing) (*int, bool) {
	s := strings.TrimSpace(r.Detail(models.DetailYear))
	y, err := strconv.ParseFloat(s, 64)
	if s == "" || err != nil {
		m := yearTokenRegexp.FindString(r.Title)
		if m == "" {
			return nil, false
		}
		y, err = strconv.ParseFloat(m, 64)
		if err != nil {
			return nil, false
		}
	}

	yr := int(y)
	if yr < minYear || yr > c.currentYear+1 {
		return &yr, false
	}
	return &yr, true
}

// cleanNumerics applies rules 3 and 4: price, mileage, engine size, power,
// doors and plate digit.
func (c *Cleaner) cleanNumerics(items []*workItem, stats *CleanStats) {
	for _, it := range items {
		r, out := it.raw, it.out

		if p := parsePrice(r.PriceText); !math.IsNaN(p) {
			out.Price = p
			it.priceOK = true
		} else if strings.TrimSpace(r.PriceText) != "" {
			stats.PriceInvalid++
		}

		if v := parseMileage(r.Detail(models.DetailMileage), r.KmText); v != nil {
			out.Mileage = v
		} else if r.Detail(models.DetailMileage) != "" || r.KmText != "" {
			stats.MileageInvalid++
		}

		if v := parseBoundedNumber(r.EngineText, minEngine, maxEngine); v != nil {
			out.EngineSize = v
		} else if r.EngineText != "" {
			stats.EngineInvalid++
		}

		if v := parseBoundedNumber(r.Detail(models.DetailPower), minEngine, maxEngine); v != nil {
			out.Power = v
		} else if r.Detail(models.DetailPower) != "" {
			stats.PowerInvalid++
		}

		if v := parseDoors(r.Detail(models.DetailDoors)); v != nil {
			out.Doors = v
		} else if r.Detail(models.DetailDoors) != "" {
			stats.DoorsInvalid++
		}

		if s := strings.TrimSpace(r.Detail(models.DetailPlateDigit)); s != "" {
			if d, err := strconv.ParseFloat(s, 64); err == nil {
				out.PlateDigit = &d
			}
		}
	}
}

// parsePrice converts a currency string to a number: currency symbol and
// thousands separators stripped, comma decimal converted to dot.
// "R$ 45.000,00" → 45000.00. Out-of-range or unparseable values are NaN.
func parsePrice(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return math.NaN()
	}
	s = priceStripper.Replace(s)
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < minPrice || v > maxPrice {
		return math.NaN()
	}
	return v
}

// parseMileage prefers the numeric detail-page attribute and falls back to
// the list-page text ("40.000 km"). Range [0, 1000000].
func parseMileage(detail, text string) *float64 {
	if s := strings.TrimSpace(detail); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return boundsCheck(v, 0, maxMileage)
		}
	}

	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return nil
	}
	s = mileageStripper.Replace(s)
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return boundsCheck(v, 0, maxMileage)
}

// parseBoundedNumber extracts the first numeric token and bounds-checks it.
func parseBoundedNumber(raw string, lo, hi float64) *float64 {
	m := numberTokenRegexp.FindString(raw)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return boundsCheck(v, lo, hi)
}

// parseDoors extracts the door count from strings like "4 Portas".
// Valid counts are 2 through 5.
func parseDoors(raw string) *int {
	m := intTokenRegexp.FindString(raw)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 2 || n > 5 {
		return nil
	}
	return &n
}

func boundsCheck(v, lo, hi float64) *float64 {
	if v < lo || v > hi {
		return nil
	}
	return &v
}

// cleanText applies rule 5 to the categorical text attributes.
func (c *Cleaner) cleanText(items []*workItem) {
	for _, it := range items {
		r, out := it.raw, it.out
		out.Brand = cleanTextValue(r.Detail(models.DetailBrand))
		out.Model = cleanTextValue(r.Detail(models.DetailModel))
		out.Category = cleanTextValue(r.Detail(models.DetailCategory))
		out.Fuel = cleanTextValue(r.Detail(models.DetailFuel))
		out.Transmission = cleanTextValue(r.Detail(models.DetailTransmission))
		out.Steering = cleanTextValue(r.Detail(models.DetailSteering))
		out.VehicleType = cleanTextValue(r.Detail(models.DetailVehicleType))
		out.GNVKit = cleanTextValue(r.Detail(models.DetailGNVKit))

		// Color comes from the detail page when present, the list page otherwise.
		if v := cleanTextValue(r.Detail(models.DetailColor)); v != nil {
			out.Color = v
		} else {
			out.Color = cleanTextValue(r.ColorText)
		}
	}
}

// cleanTextValue trims, collapses internal whitespace and nulls out sentinel
// spellings of missing data.
func cleanTextValue(raw string) *string {
	s := normaliseText(raw)
	if _, sentinel := textSentinels[s]; sentinel {
		return nil
	}
	return &s
}

// cleanOptions applies rule 6: a detail column qualifies as boolean when every
// non-null value it takes is drawn from the boolean token set; null and empty
// are treated as false. Columns failing the check have no typed destination
// and are dropped. Returns the surviving option column names.
func (c *Cleaner) cleanOptions(items []*workItem, stats *CleanStats) []string {
	boolean := make(map[string]bool)

	for _, it := range items {
		for key, val := range it.raw.Details {
			if _, known := knownDetailKeys[key]; known {
				continue
			}
			if dropped, seen := boolean[key]; seen && dropped {
				continue
			}
			if _, ok := booleanTokens[strings.TrimSpace(val)]; !ok {
				boolean[key] = true // dropped
			} else if _, seen := boolean[key]; !seen {
				boolean[key] = false
			}
		}
	}

	keys := make([]string, 0, len(boolean))
	for key, dropped := range boolean {
		if dropped {
			stats.NonBooleanOptions = append(stats.NonBooleanOptions, key)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	sort.Strings(stats.NonBooleanOptions)

	for _, it := range items {
		it.out.Options = make(map[string]bool, len(keys))
		for _, key := range keys {
			it.out.Options[key] = booleanTokens[strings.TrimSpace(it.raw.Detail(key))]
		}
	}
	return keys
}

// cleanLocation applies rule 7: validate the state code, fall back to a
// trailing state token inside the city string, and drop rows whose state
// cannot be resolved.
func (c *Cleaner) cleanLocation(items []*workItem, stats *CleanStats) []*workItem {
	kept := items[:0]

	for _, it := range items {
		r, out := it.raw, it.out

		state := strings.ToUpper(strings.TrimSpace(r.Detail(models.DetailState)))
		if _, ok := validStates[state]; !ok {
			state = ""
		}

		city := lowerTextValue(r.Detail(models.DetailCity))
		if state == "" && city != nil {
			if recovered, stripped := extractTrailingState(*city); recovered != "" {
				state = recovered
				stats.StatesRecovered++
				if stripped == "" {
					city = nil
				} else {
					city = &stripped
				}
			}
		}

		if state == "" {
			stats.StateUnresolvedDropped++
			continue
		}

		out.State = state
		out.City = city
		out.Neighborhood = lowerTextValue(r.Detail(models.DetailNeighborhood))
		out.ZipCode = cleanTextValue(r.Detail(models.DetailZipCode))
		kept = append(kept, it)
	}
	return kept
}

// extractTrailingState returns a valid state code found as the last token of
// the city string, plus the city with that token stripped.
func extractTrailingState(city string) (state, stripped string) {
	fields := strings.Fields(city)
	if len(fields) == 0 {
		return "", city
	}
	last := strings.ToUpper(fields[len(fields)-1])
	if _, ok := validStates[last]; !ok {
		return "", city
	}
	return last, strings.Join(fields[:len(fields)-1], " ")
}

func lowerTextValue(raw string) *string {
	v := cleanTextValue(raw)
	if v == nil {
		return nil
	}
	s := strings.ToLower(*v)
	return &s
}

// dropMissingCritical applies rule 8: price and year are required.
func (c *Cleaner) dropMissingCritical(items []*workItem, stats *CleanStats) []*workItem {
	kept := items[:0]
	for _, it := range items {
		if !it.priceOK || !it.yearOK {
			stats.MissingCriticalDropped++
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

// dropConstantOptions applies rule 9 to the option columns: a flag taking a
// single value across all retained rows carries no information. The fixed
// typed columns are part of the artifact contract and are never dropped.
func (c *Cleaner) dropConstantOptions(items []*workItem, optionKeys []string, stats *CleanStats) {
	if len(items) == 0 {
		return
	}
	for _, key := range optionKeys {
		first := items[0].out.Options[key]
		constant := true
		for _, it := range items[1:] {
			if it.out.Options[key] != first {
				constant = false
				break
			}
		}
		if !constant {
			continue
		}
		for _, it := range items {
			delete(it.out.Options, key)
		}
		stats.ConstantColumnsDropped = append(stats.ConstantColumnsDropped, key)
	}
}

// normaliseText strips leading/trailing whitespace and collapses internal
// whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
