package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DriverProfile is a courier known to payroll. DriverCode is the external
// identifier printed on manifests; ID is only used as a foreign key.
type DriverProfile struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	DriverCode string       `json:"driver_code" gorm:"type:text;not null;uniqueIndex:ux_driver_profiles_code"`
	FullName   string       `json:"full_name" gorm:"type:text;not null;default:''"`
	SalaryType string       `json:"salary_type" gorm:"type:text;not null;default:''"`
	Schedule   string       `json:"schedule,omitempty" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DriverProfile) TableName() string { return "driver_profiles" }

// NormalizeCode trims a driver code; codes are matched exactly otherwise.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}
