package readinglog

import "fmt"

// Attribute is one OpenSea-style metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// TokenMetadata is the JSON document pinned to IPFS for each log entry.
type TokenMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// NewTokenMetadata builds the metadata for a log entry. imageHash is the
// IPFS hash of the pinned cover image; gateway is the public gateway base
// URL ending in /ipfs/.
func NewTokenMetadata(gateway, title, author, isbn, review, imageHash string) TokenMetadata {
	return TokenMetadata{
		Name:        title,
		Description: review,
		Image:       fmt.Sprintf("%s%s", gateway, imageHash),
		Attributes: []Attribute{
			{TraitType: "Author", Value: author},
			{TraitType: "ISBN", Value: isbn},
		},
	}
}
