package models

import "time"

// ProductImage is an uploaded photo that can be referenced as analysis input.
type ProductImage struct {
	ID        string
	OwnerID   string
	Bucket    string
	ObjectKey string
	Format    string
	SizeBytes int64
	Checksum  []byte
	Signature string
	CreatedAt time.Time
}

// ProductAnalysis is the structured listing draft produced by the AI analysis.
type ProductAnalysis struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Materials      []string `json:"materials"`
	Colors         []string `json:"colors"`
	SuggestedPrice float64  `json:"suggestedPrice,omitempty"`
}
