package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewListResponseHasMore(t *testing.T) {
	page := NewListResponse([]int{1, 2}, 5, 2, 0)
	assert.True(t, page.Pagination.HasMore)

	last := NewListResponse([]int{5}, 5, 2, 4)
	assert.False(t, last.Pagination.HasMore)
	assert.Equal(t, 5, last.Pagination.Total)

	empty := NewListResponse([]int{}, 0, 50, 0)
	assert.False(t, empty.Pagination.HasMore)
}
