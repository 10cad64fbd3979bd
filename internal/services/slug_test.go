package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeSlug(t *testing.T) {
	tests := []struct {
		title, artist, want string
	}{
		{"Blue Horizon", "", "blue-horizon"},
		{"Blue Horizon", "Jürgen Maß", "blue-horizon-jurgen-ma"},
		{"  Étude   No. 3 ", "Zoë", "etude-no-3-zoe"},
		{"!!!", "", "artwork"},
		{"", "", "artwork"},
		{"Night/Day -- Study", "A. B.", "night-day-study-a-b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MakeSlug(tt.title, tt.artist), tt.title)
	}
}
