package database

import (
	"encoding/json"
	"time"
)

// JobRecord is the durable form of one upload job. Results and degradations
// are stored as JSON so the record survives schema-free evolution of the
// pipeline's result shape.
type JobRecord struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"ownerId"`
	Name         string          `json:"name"`
	ByteSize     int64           `json:"byteSize"`
	MimeType     string          `json:"mimeType"`
	PixelWidth   int             `json:"pixelWidth"`
	PixelHeight  int             `json:"pixelHeight"`
	Stage        string          `json:"stage"`
	Progress     int             `json:"progress"`
	Results      json.RawMessage `json:"results,omitempty"`
	Degradations json.RawMessage `json:"degradations,omitempty"`
	ErrorKind    string          `json:"errorKind,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}
