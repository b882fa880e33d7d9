package storage

import (
	"path/filepath"
	"testing"
	"time"

	"olx-price-pipeline/models"
	"olx-price-pipeline/utils"
)

func strp(s string) *string   { return &s }
func fptr(v float64) *float64 { return &v }

func TestRawRoundTrip(t *testing.T) {
	store := NewCSVStore(utils.NewLogger())
	path := filepath.Join(t.TempDir(), "raw", "cars.csv")

	in := []*models.RawListing{
		{
			URL:       "https://olx.com.br/ad/1",
			Title:     "Fiat Uno 2015",
			PriceText: "R$ 30.000",
			KmText:    "80.000 km",
			ScrapedAt: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
			Details: map[string]string{
				models.DetailYear:  "2015",
				models.DetailBrand: "Fiat",
				"teto_solar":       "True",
			},
		},
		{
			URL:       "https://olx.com.br/ad/2",
			Title:     "VW Gol",
			PriceText: "R$ 25.000",
		},
	}

	if err := store.WriteRaw(path, in); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	out, err := store.ReadRaw(path)
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d listings, want 2", len(out))
	}

	if out[0].URL != in[0].URL || out[0].PriceText != in[0].PriceText {
		t.Errorf("fixed fields lost: %+v", out[0])
	}
	if !out[0].ScrapedAt.Equal(in[0].ScrapedAt) {
		t.Errorf("ScrapedAt = %v; want %v", out[0].ScrapedAt, in[0].ScrapedAt)
	}
	if out[0].Detail(models.DetailBrand) != "Fiat" || out[0].Detail("teto_solar") != "True" {
		t.Errorf("detail columns lost: %v", out[0].Details)
	}
	// The second listing never had details; absent cells must not materialize.
	if out[1].Detail(models.DetailBrand) != "" {
		t.Errorf("empty detail cell became %q", out[1].Detail(models.DetailBrand))
	}
}

func TestCleanedRoundTrip(t *testing.T) {
	store := NewCSVStore(utils.NewLogger())
	path := filepath.Join(t.TempDir(), "processed", "cars.csv")

	in := []*models.Listing{
		{
			URL: "https://olx.com.br/ad/1", Title: "Fiat Uno",
			Price: 30000, Year: 2015,
			Mileage: fptr(80000), Doors: nil, EngineSize: nil,
			Brand: strp("Fiat"), State: "SP", City: strp("campinas"),
			Options: map[string]bool{"teto_solar": true, "blindado": false},
		},
	}

	if err := store.WriteCleaned(path, in); err != nil {
		t.Fatalf("WriteCleaned: %v", err)
	}
	out, err := store.ReadCleaned(path)
	if err != nil {
		t.Fatalf("ReadCleaned: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d listings, want 1", len(out))
	}

	l := out[0]
	if l.Price != 30000 || l.Year != 2015 || l.State != "SP" {
		t.Errorf("critical columns lost: %+v", l)
	}
	if l.Mileage == nil || *l.Mileage != 80000 {
		t.Errorf("Mileage = %v; want 80000", l.Mileage)
	}
	if l.Doors != nil || l.EngineSize != nil {
		t.Error("null numerics must stay null through the CSV")
	}
	if l.Brand == nil || *l.Brand != "Fiat" {
		t.Errorf("Brand = %v", l.Brand)
	}
	if !l.Option("teto_solar") || l.Option("blindado") {
		t.Errorf("option flags lost: %v", l.Options)
	}
}

func TestReadCleanedRejectsBadPrice(t *testing.T) {
	store := NewCSVStore(utils.NewLogger())
	path := filepath.Join(t.TempDir(), "bad.csv")

	header := []string{"url", "title", "price", "year", "state"}
	records := [][]string{{"u", "t", "not-a-number", "2015", "SP"}}
	if err := store.WriteTable(path, header, records); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	if _, err := store.ReadCleaned(path); err == nil {
		t.Fatal("ReadCleaned should reject an unparseable price")
	}
}

func TestReadTableMissingFile(t *testing.T) {
	store := NewCSVStore(utils.NewLogger())
	if _, err := store.ReadRaw(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("ReadRaw on a missing file should fail")
	}
}
