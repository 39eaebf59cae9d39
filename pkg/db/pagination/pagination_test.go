package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: DefaultLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 3, Limit: MaxLimit}, Page{Page: 3, Limit: 1000}.Normalize())
	assert.Equal(t, 20, Page{Page: 3, Limit: 10}.Offset())
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Page{Page: 2, Limit: 10}, 21)
	assert.Equal(t, 3, info.TotalPages)
	assert.Equal(t, int64(21), info.Total)

	assert.Equal(t, 0, BuildPageInfo(Page{}, 0).TotalPages)
}
