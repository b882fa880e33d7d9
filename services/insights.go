package services

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"olx-price-pipeline/models"
	"olx-price-pipeline/utils"
)

// InsightService summarizes the cleaned dataset for the terminal dashboard.
// It works off the persisted CSV rather than in-memory listings so it can run
// standalone against any ETL output.
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates an InsightService.
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate loads the cleaned listing table and computes the summary report.
func (s *InsightService) Generate(path string) (*models.DatasetReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("insights: open cleaned dataset: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f)
	if df.Err != nil {
		return nil, fmt.Errorf("insights: read cleaned dataset: %w", df.Err)
	}
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("insights: %w", ErrEmptyDataset)
	}

	price := df.Col("price")
	if price.Err != nil {
		return nil, fmt.Errorf("insights: missing price column: %w", price.Err)
	}

	report := &models.DatasetReport{
		TotalListings:   df.Nrow(),
		AvgPrice:        price.Mean(),
		MedianPrice:     price.Median(),
		MinPrice:        price.Min(),
		MaxPrice:        price.Max(),
		ListingsByState: countValues(df, "state"),
		ListingsByBrand: countValues(df, "brand"),
	}

	if mileage := df.Col("mileage"); mileage.Err == nil {
		report.AvgMileage = meanIgnoringNaN(mileage.Float())
	}

	s.logger.Info("[insights] Summarized %d listings from %s", report.TotalListings, path)
	return report, nil
}

// Print renders the report to the terminal.
func (s *InsightService) Print(r *models.DatasetReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  USED-CAR DATASET OVERVIEW\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Cleaned listings : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Printf("  Average mileage  : \033[1m%.0f km\033[0m\n", r.AvgMileage)
	fmt.Println()

	fmt.Printf("\033[1;33m  Price Statistics (BRL)\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Average : \033[1;32mR$ %.2f\033[0m\n", r.AvgPrice)
	fmt.Printf("  Median  : \033[1;32mR$ %.2f\033[0m\n", r.MedianPrice)
	fmt.Printf("  Minimum : \033[1;32mR$ %.2f\033[0m\n", r.MinPrice)
	fmt.Printf("  Maximum : \033[1;32mR$ %.2f\033[0m\n", r.MaxPrice)
	fmt.Println()

	printCounts("Listings by State", thin, r.ListingsByState)
	printCounts("Top Brands", thin, r.ListingsByBrand)

	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)
}

func printCounts(title, thin string, counts map[string]int) {
	fmt.Printf("\033[1;33m  %s\033[0m\n", title)
	fmt.Printf("  %s\n", thin)
	if len(counts) == 0 {
		fmt.Printf("  No data\n\n")
		return
	}

	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, n := range counts {
		entries = append(entries, entry{k, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > 10 {
		entries = entries[:10]
	}

	max := entries[0].count
	for _, e := range entries {
		barLen := e.count * 30 / max
		if barLen < 1 {
			barLen = 1
		}
		fmt.Printf("  %-20s %s (%d)\n", truncate(e.key, 18), strings.Repeat("█", barLen), e.count)
	}
	fmt.Println()
}

func countValues(df dataframe.DataFrame, col string) map[string]int {
	counts := make(map[string]int)
	series := df.Col(col)
	if series.Err != nil {
		return counts
	}
	for _, v := range series.Records() {
		if v != "" && v != "NaN" {
			counts[v]++
		}
	}
	return counts
}

func meanIgnoringNaN(vals []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range vals {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
