package storage

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"olx-price-pipeline/models"
	"olx-price-pipeline/utils"
)

// Fixed raw CSV columns, in order. The names are the scraped contract and
// match the source site's list-page fields; detail-page attributes follow as
// dynamic columns in sorted order.
var rawFixedCols = []string{
	"url", "title_list", "price_list", "km_list", "color_list", "motor_list", "scraped_at",
}

// Fixed cleaned CSV columns, in order. Option flag columns follow sorted.
var cleanedFixedCols = []string{
	"url", "title", "price", "year", "mileage", "engine_size", "power", "doors",
	"plate_digit", "brand", "model", "category", "color", "fuel", "transmission",
	"steering", "vehicle_type", "gnv_kit", "state", "city", "neighborhood", "zip_code",
}

// CSVStore reads and writes the delimited artifacts that connect the
// pipeline stages: raw listings, cleaned listings and feature tables.
type CSVStore struct {
	logger *utils.Logger
}

// NewCSVStore creates a CSVStore.
func NewCSVStore(logger *utils.Logger) *CSVStore {
	return &CSVStore{logger: logger}
}

// WriteRaw persists raw listings with a header of the fixed list-page columns
// followed by the sorted union of detail-page attribute columns.
func (s *CSVStore) WriteRaw(path string, listings []*models.RawListing) error {
	detailCols := make(map[string]struct{})
	for _, l := range listings {
		for key := range l.Details {
			detailCols[key] = struct{}{}
		}
	}
	dynamic := sortedKeys(detailCols)

	header := append(append([]string{}, rawFixedCols...), dynamic...)
	records := make([][]string, 0, len(listings))
	for _, l := range listings {
		rec := []string{
			l.URL, l.Title, l.PriceText, l.KmText, l.ColorText, l.EngineText,
			l.ScrapedAt.Format(time.RFC3339),
		}
		for _, col := range dynamic {
			rec = append(rec, l.Detail(col))
		}
		records = append(records, rec)
	}

	if err := s.WriteTable(path, header, records); err != nil {
		return err
	}
	s.logger.Info("[storage] Wrote %d raw listings to %s (%d detail columns)",
		len(listings), path, len(dynamic))
	return nil
}

// ReadRaw loads a raw listing table. Columns beyond the fixed set become
// detail attributes.
func (s *CSVStore) ReadRaw(path string) ([]*models.RawListing, error) {
	header, records, err := s.readTable(path)
	if err != nil {
		return nil, err
	}

	fixed := make(map[string]struct{}, len(rawFixedCols))
	for _, col := range rawFixedCols {
		fixed[col] = struct{}{}
	}

	col := indexColumns(header)
	listings := make([]*models.RawListing, 0, len(records))
	for _, rec := range records {
		l := &models.RawListing{
			URL:        cell(rec, col, "url"),
			Title:      cell(rec, col, "title_list"),
			PriceText:  cell(rec, col, "price_list"),
			KmText:     cell(rec, col, "km_list"),
			ColorText:  cell(rec, col, "color_list"),
			EngineText: cell(rec, col, "motor_list"),
		}
		if ts := cell(rec, col, "scraped_at"); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				l.ScrapedAt = t
			}
		}
		for name, i := range col {
			if _, isFixed := fixed[name]; isFixed || i >= len(rec) {
				continue
			}
			if rec[i] != "" {
				l.SetDetail(name, rec[i])
			}
		}
		listings = append(listings, l)
	}

	s.logger.Info("[storage] Read %d raw listings from %s", len(listings), path)
	return listings, nil
}

// WriteCleaned persists cleaned listings. Null values serialize as empty
// cells; option flags become true/false columns after the fixed set.
func (s *CSVStore) WriteCleaned(path string, listings []*models.Listing) error {
	flagCols := make(map[string]struct{})
	for _, l := range listings {
		for name := range l.Options {
			flagCols[name] = struct{}{}
		}
	}
	flags := sortedKeys(flagCols)

	header := append(append([]string{}, cleanedFixedCols...), flags...)
	records := make([][]string, 0, len(listings))
	for _, l := range listings {
		rec := []string{
			l.URL, l.Title,
			formatFloat(l.Price), strconv.Itoa(l.Year),
			optFloat(l.Mileage), optFloat(l.EngineSize), optFloat(l.Power),
			optInt(l.Doors), optFloat(l.PlateDigit),
			optStr(l.Brand), optStr(l.Model), optStr(l.Category), optStr(l.Color),
			optStr(l.Fuel), optStr(l.Transmission), optStr(l.Steering),
			optStr(l.VehicleType), optStr(l.GNVKit),
			l.State, optStr(l.City), optStr(l.Neighborhood), optStr(l.ZipCode),
		}
		for _, name := range flags {
			rec = append(rec, strconv.FormatBool(l.Option(name)))
		}
		records = append(records, rec)
	}

	if err := s.WriteTable(path, header, records); err != nil {
		return err
	}
	s.logger.Info("[storage] Wrote %d cleaned listings to %s (%d option columns)",
		len(listings), path, len(flags))
	return nil
}

// ReadCleaned loads a cleaned listing table written by WriteCleaned.
func (s *CSVStore) ReadCleaned(path string) ([]*models.Listing, error) {
	header, records, err := s.readTable(path)
	if err != nil {
		return nil, err
	}

	fixed := make(map[string]struct{}, len(cleanedFixedCols))
	for _, c := range cleanedFixedCols {
		fixed[c] = struct{}{}
	}

	col := indexColumns(header)
	listings := make([]*models.Listing, 0, len(records))
	for i, rec := range records {
		price, err := strconv.ParseFloat(cell(rec, col, "price"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv: row %d: bad price %q", i+1, cell(rec, col, "price"))
		}
		year, err := strconv.Atoi(cell(rec, col, "year"))
		if err != nil {
			return nil, fmt.Errorf("csv: row %d: bad year %q", i+1, cell(rec, col, "year"))
		}

		l := &models.Listing{
			URL:          cell(rec, col, "url"),
			Title:        cell(rec, col, "title"),
			Price:        price,
			Year:         year,
			Mileage:      parseOptFloat(cell(rec, col, "mileage")),
			EngineSize:   parseOptFloat(cell(rec, col, "engine_size")),
			Power:        parseOptFloat(cell(rec, col, "power")),
			Doors:        parseOptInt(cell(rec, col, "doors")),
			PlateDigit:   parseOptFloat(cell(rec, col, "plate_digit")),
			Brand:        parseOptStr(cell(rec, col, "brand")),
			Model:        parseOptStr(cell(rec, col, "model")),
			Category:     parseOptStr(cell(rec, col, "category")),
			Color:        parseOptStr(cell(rec, col, "color")),
			Fuel:         parseOptStr(cell(rec, col, "fuel")),
			Transmission: parseOptStr(cell(rec, col, "transmission")),
			Steering:     parseOptStr(cell(rec, col, "steering")),
			VehicleType:  parseOptStr(cell(rec, col, "vehicle_type")),
			GNVKit:       parseOptStr(cell(rec, col, "gnv_kit")),
			State:        cell(rec, col, "state"),
			City:         parseOptStr(cell(rec, col, "city")),
			Neighborhood: parseOptStr(cell(rec, col, "neighborhood")),
			ZipCode:      parseOptStr(cell(rec, col, "zip_code")),
			Options:      make(map[string]bool),
		}
		for name, idx := range col {
			if _, isFixed := fixed[name]; isFixed || idx >= len(rec) {
				continue
			}
			l.Options[name] = rec[idx] == "true"
		}
		listings = append(listings, l)
	}

	s.logger.Info("[storage] Read %d cleaned listings from %s", len(listings), path)
	return listings, nil
}

// WriteTable writes a generic header+records CSV, creating parent directories.
func (s *CSVStore) WriteTable(path string, header []string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func (s *CSVStore) readTable(path string) (header []string, records [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv: read %q: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("csv: %q has no header row", path)
	}
	return rows[0], rows[1:], nil
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	return col
}

func cell(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return ""
	}
	return formatFloat(*v)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func parseOptFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseOptInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func parseOptStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
