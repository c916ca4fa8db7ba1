package core

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestCandidateRecord_IsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		candidate CandidateRecord
		expected  bool
	}{
		{
			name:      "no bounds",
			candidate: CandidateRecord{Name: "ca"},
			expected:  true,
		},
		{
			name:      "activated and not expired",
			candidate: CandidateRecord{ActivationTime: now.Add(-time.Hour), ExpirationTime: now.Add(time.Hour)},
			expected:  true,
		},
		{
			name:      "not yet activated",
			candidate: CandidateRecord{ActivationTime: now.Add(time.Minute)},
			expected:  false,
		},
		{
			name:      "expires exactly now",
			candidate: CandidateRecord{ExpirationTime: now},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, tt.candidate.IsActive(now))
		})
	}
}

func TestSortedBuyers(t *testing.T) {
	m := map[BuyerID]int{"c.example": 3, "a.example": 1, "b.example": 2}

	check.Equal(t, []BuyerID{"a.example", "b.example", "c.example"}, SortedBuyers(m))
	check.Equal(t, []BuyerID{}, SortedBuyers(map[BuyerID]int{}))
}
