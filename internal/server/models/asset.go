package models

import "time"

// Collection identifies which asset family a record belongs to.
type Collection string

const (
	CollectionCAD       Collection = "cad"
	CollectionInvoice   Collection = "invoice"
	CollectionDocument  Collection = "document"
	CollectionPortfolio Collection = "portfolio"
)

// ValidCollection reports whether c names a known collection.
func ValidCollection(c Collection) bool {
	switch c {
	case CollectionCAD, CollectionInvoice, CollectionDocument, CollectionPortfolio:
		return true
	}
	return false
}

// UnknownUploader is recorded when the session capsule could not supply an
// uploader email. It is never written silently in place of a present one.
const UnknownUploader = "unknown"

// Asset describes one uploaded binary within a collection. URL is the
// resolved retrieval URL for StorageKey and is non-empty for every complete
// record. Invoice records carry InvoiceType; portfolio records additionally
// carry Description and an optional logo handle/URL pair.
type Asset struct {
	ID          string
	Collection  Collection
	Name        string
	Description string
	InvoiceType string

	StorageKey     string
	URL            string
	LogoStorageKey string
	LogoURL        string

	UploadedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
