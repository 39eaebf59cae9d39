package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolution_AllFailed(t *testing.T) {
	boom := errors.New("boom")

	assert.False(t, Resolution{}.AllFailed())
	assert.True(t, Resolution{Attempts: []Attempt{{Tier: TierGeocode, Err: boom}, {Tier: TierFindPlace, Err: boom}}}.AllFailed())
	assert.False(t, Resolution{Attempts: []Attempt{{Tier: TierGeocode, Err: boom}, {Tier: TierFindPlace}}}.AllFailed())
	assert.False(t, Resolution{Result: &Result{}, Attempts: []Attempt{{Err: boom}}}.AllFailed())
	assert.True(t, Resolution{Result: &Result{}}.Found())
}
