package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// MismatchThreshold is the similarity below which an address is flagged.
const MismatchThreshold = 0.6

// AddressMismatch records a delivered parcel whose reported fix reverse
// geocodes to an address unlike the uploaded one.
type AddressMismatch struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	DeliveryEventID snowflake.ID `json:"delivery_event_id" gorm:"not null;uniqueIndex"`
	ExpectedAddress string       `json:"expected_address" gorm:"type:text;not null"`
	ActualAddress   string       `json:"actual_address" gorm:"type:text;not null"`
	SimilarityScore float64      `json:"similarity_score" gorm:"not null;default:0"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (AddressMismatch) TableName() string { return "address_mismatches" }

type ValidateResult struct {
	Checked    int               `json:"checked"`
	Skipped    int               `json:"skipped"`
	Mismatches []AddressMismatch `json:"mismatches"`
}

type Service interface {
	// ValidateAddresses checks delivered events with a reported fix. An
	// empty driverCode checks every driver.
	ValidateAddresses(ctx context.Context, driverCode string) (ValidateResult, error)
}

var (
	ErrDriverNotFound        = errors.New("driver_not_found")
	ErrProviderNotConfigured = errors.New("geocode_provider_not_configured")
)
