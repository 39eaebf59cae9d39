package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/smallbiznis/routepay/internal/payperiod"
)

var errInvalidPeriodKey = errors.New("invalid_pay_period_key")

// parsePeriodKey accepts a year*100+week key and checks it names a real
// pay period.
func parsePeriodKey(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errInvalidPeriodKey
	}
	key, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, errInvalidPeriodKey
	}
	if _, err := payperiod.Unbucket(key); err != nil {
		return 0, err
	}
	return key, nil
}

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}
