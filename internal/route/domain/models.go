package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Route groups the ZIP codes a courier is paid for at a common per-stop rate.
type Route struct {
	ID                        snowflake.ID    `json:"id" gorm:"primaryKey"`
	Code                      string          `json:"code" gorm:"type:text;not null;uniqueIndex:ux_routes_code"`
	Name                      string          `json:"name" gorm:"type:text;not null"`
	ZipCodes                  string          `json:"zip_codes" gorm:"type:text;not null;default:''"`
	RatePerStop               decimal.Decimal `json:"rate_per_stop" gorm:"type:numeric(12,2);not null;default:0"`
	RatePerStopCompanyVehicle decimal.Decimal `json:"rate_per_stop_company_vehicle" gorm:"type:numeric(12,2);not null;default:0"`
	BaseRate                  decimal.Decimal `json:"base_rate" gorm:"type:numeric(12,2);not null;default:0"`
	Zone                      string          `json:"zone,omitempty" gorm:"type:text"`
	Schedule                  string          `json:"schedule,omitempty" gorm:"type:text"`
	CreatedAt                 time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                 time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Route) TableName() string { return "routes" }

// ZipTokens splits the stored ZIP list. Both a JSON array and a comma or
// whitespace separated list are accepted; tokens are returned unnormalized.
func (r Route) ZipTokens() []string {
	raw := strings.TrimSpace(r.ZipCodes)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var values []any
		if err := json.Unmarshal([]byte(raw), &values); err == nil {
			out := make([]string, 0, len(values))
			for _, v := range values {
				switch typed := v.(type) {
				case string:
					out = append(out, typed)
				case float64:
					out = append(out, decimal.NewFromFloat(typed).String())
				}
			}
			return out
		}
		raw = strings.Trim(raw, "[]")
	}
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' || r == '"'
	})
}
