package models

// DatasetReport holds the computed summary over the cleaned dataset, shown
// by the dashboard subcommand.
type DatasetReport struct {
	TotalListings int

	AvgPrice    float64
	MedianPrice float64
	MinPrice    float64
	MaxPrice    float64

	AvgMileage float64

	ListingsByState map[string]int
	ListingsByBrand map[string]int
}
