package domain

import (
	"errors"
	"testing"
)

func TestParseDateFilter(t *testing.T) {
	tests := []struct {
		in   string
		want DateFilter
	}{
		{"", DateAll},
		{"all", DateAll},
		{"today", DateToday},
		{" Upcoming ", DateUpcoming},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDateFilter(tt.in)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseDateFilter(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	t.Run("unknown mode", func(t *testing.T) {
		_, err := ParseDateFilter("yesterday")
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("expected ErrInvalidRequest, got %v", err)
		}
	})
}

func TestIDSet(t *testing.T) {
	events := []Event{{ID: 1}, {ID: 2}, {ID: 2}}

	set := IDsOf(events)
	if len(set) != 2 {
		t.Errorf("expected 2 ids, got %d", len(set))
	}
	if !set.Has(1) || !set.Has(2) {
		t.Error("expected ids 1 and 2 to be present")
	}
	if set.Has(3) {
		t.Error("did not expect id 3")
	}

	var empty IDSet
	if empty.Has(1) {
		t.Error("nil set should contain nothing")
	}

	if !NewIDSet(7, 8).Has(8) {
		t.Error("expected NewIDSet to contain 8")
	}
}
