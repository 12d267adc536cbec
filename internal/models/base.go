package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel defines the common fields for all relationship rows.
// Rows are hard-deleted, so there is no DeletedAt: a soft-deleted edge would
// still occupy its unique pair index.
type BaseModel struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a random UUID when the caller did not set one.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// OrderedPair returns the two ids in ascending order.
func OrderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// PairKey identifies an unordered pair, e.g. for the chat change-feed channel.
func PairKey(a, b string) string {
	low, high := OrderedPair(a, b)
	return low + "-" + high
}
