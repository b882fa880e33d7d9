package storage

import "olx-price-pipeline/models"

// ListingWriter is the interface a cleaned-listing sink must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}
