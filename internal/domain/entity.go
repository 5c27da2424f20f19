package domain

import (
	"time"
)

// CompanyInfo represents metadata for an unlisted company whose shares are traded
type CompanyInfo struct {
	Symbol       string    `gorm:"primaryKey" json:"symbol"`
	Name         string    `json:"name"`
	LogoPath     string    `json:"logo_path"`
	IsActive     bool      `json:"is_active" gorm:"index"` // Open for new listings
	LastSyncedAt time.Time `json:"last_synced_at"`         // Last logo sync time
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
