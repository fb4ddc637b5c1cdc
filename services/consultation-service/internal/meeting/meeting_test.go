package meeting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateIsStablePerBooking(t *testing.T) {
	a := Allocator{BaseURL: "https://meet.example.com/"}

	first := a.Allocate("b1")
	assert.Equal(t, first, a.Allocate("b1"))
	assert.NotEqual(t, first, a.Allocate("b2"))
	assert.True(t, strings.HasPrefix(first, "https://meet.example.com/"))
	assert.False(t, strings.Contains(strings.TrimPrefix(first, "https://"), "//"))
}

func TestAllocateWithoutBaseURL(t *testing.T) {
	loc := Allocator{}.Allocate("b1")
	assert.Len(t, loc, 36)
}
