package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeZip(t *testing.T) {
	cases := map[string]string{
		"6379":       "06379",
		"06379":      "06379",
		"06379-1234": "06379",
		"063791234":  "06379",
		" 10001 ":    "10001",
		"501":        "00501",
		"":           "",
		"n/a":        "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeZip(raw), raw)
	}
}

func TestClassifySalary(t *testing.T) {
	cases := []struct {
		in    string
		class SalaryClass
		known bool
	}{
		{"Company Vehicle", SalaryCompanyVehicle, true},
		{"regular - company vehicle", SalaryCompanyVehicle, true},
		{"FIXED", SalaryFixed, true},
		{"Regular", SalaryRegular, true},
		{"contractor", SalaryRegular, false},
		{"", SalaryRegular, false},
	}
	for _, tc := range cases {
		class, known := ClassifySalary(tc.in)
		assert.Equal(t, tc.class, class, tc.in)
		assert.Equal(t, tc.known, known, tc.in)
	}
}

func TestRateForClass(t *testing.T) {
	route := routedomain.Route{
		RatePerStop:               decimal.RequireFromString("1.75"),
		RatePerStopCompanyVehicle: decimal.RequireFromString("2.00"),
		BaseRate:                  decimal.RequireFromString("150"),
	}
	assert.True(t, decimal.RequireFromString("2").Equal(RateForClass(route, SalaryCompanyVehicle)))
	assert.True(t, decimal.RequireFromString("150").Equal(RateForClass(route, SalaryFixed)))
	assert.True(t, decimal.RequireFromString("1.75").Equal(RateForClass(route, SalaryRegular)))
}

func TestFlatDailyAmount(t *testing.T) {
	rate := decimal.RequireFromString("120.50")
	assert.Equal(t, "241.00", FlatDailyAmount(rate, 2).StringFixed(2))
	assert.True(t, FlatDailyAmount(rate, 0).IsZero())
}
