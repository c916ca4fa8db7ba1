package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestIsPositiveBid(t *testing.T) {
	tests := []struct {
		name     string
		bid      float64
		expected bool
	}{
		{name: "regular bid", bid: 1.25, expected: true},
		{name: "zero bid", bid: 0, expected: false},
		{name: "negative bid", bid: -0.5, expected: false},
		{name: "below monetary precision rounds to zero", bid: 0.00004, expected: false},
		{name: "at monetary precision", bid: 0.0001, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, IsPositiveBid(tt.bid))
		})
	}
}
