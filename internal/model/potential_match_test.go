package model

import (
	"testing"
)

func TestPotentialMatch_Validate(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		match   PotentialMatch
		wantErr bool
	}{
		{
			name:  "valid match",
			match: PotentialMatch{ClientID: "c1", Confidence: 0.95},
		},
		{
			name:    "missing client",
			match:   PotentialMatch{Confidence: 0.5},
			wantErr: true,
			errMsg:  "client ID is required",
		},
		{
			name:    "confidence too high",
			match:   PotentialMatch{ClientID: "c1", Confidence: 1.1},
			wantErr: true,
			errMsg:  "confidence must be between 0.0 and 1.0, got 1.10",
		},
		{
			name:  "edge case - confidence 0.0",
			match: PotentialMatch{ClientID: "c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.match.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && err.Error() != tt.errMsg {
				t.Errorf("Validate() error = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestPotentialMatches_SortIsStable(t *testing.T) {
	matches := PotentialMatches{
		{ClientID: "b", Confidence: 0.5},
		{ClientID: "a", Confidence: 0.95},
		{ClientID: "d", Confidence: 0.3},
		{ClientID: "c", Confidence: 0.95},
	}

	matches.Sort()

	want := []string{"a", "c", "b", "d"}
	for i, id := range want {
		if matches[i].ClientID != id {
			t.Errorf("Sort() index %d = %s, want %s", i, matches[i].ClientID, id)
		}
	}
}

func TestPotentialMatches_Top(t *testing.T) {
	if got := (PotentialMatches{}).Top(); got != nil {
		t.Errorf("Top() on empty = %v, want nil", got)
	}

	matches := PotentialMatches{
		{ClientID: "b", Confidence: 0.5},
		{ClientID: "a", Confidence: 0.9},
	}
	got := matches.Top()
	if got == nil || got.ClientID != "a" {
		t.Errorf("Top() = %v, want client a", got)
	}
}

func TestPotentialMatches_TopN(t *testing.T) {
	matches := PotentialMatches{
		{ClientID: "a", Confidence: 0.9},
		{ClientID: "b", Confidence: 0.7},
		{ClientID: "c", Confidence: 0.5},
	}

	tests := []struct {
		name  string
		n     int
		count int
	}{
		{name: "zero", n: 0, count: 0},
		{name: "negative", n: -1, count: 0},
		{name: "top 2", n: 2, count: 2},
		{name: "more than exists", n: 10, count: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matches.TopN(tt.n)
			if len(got) != tt.count {
				t.Errorf("TopN(%d) returned %d items, want %d", tt.n, len(got), tt.count)
			}
			if tt.count > 0 && got[0].ClientID != "a" {
				t.Errorf("TopN(%d) first = %s, want a", tt.n, got[0].ClientID)
			}
		})
	}
}

func TestPotentialMatches_AboveThreshold(t *testing.T) {
	matches := PotentialMatches{
		{ClientID: "a", Confidence: 0.95},
		{ClientID: "b", Confidence: 0.85},
		{ClientID: "c", Confidence: 0.84},
	}

	got := matches.AboveThreshold(0.85)
	if len(got) != 2 {
		t.Fatalf("AboveThreshold(0.85) returned %d items, want 2", len(got))
	}
	if got[1].ClientID != "b" {
		t.Errorf("AboveThreshold(0.85)[1] = %s, want b", got[1].ClientID)
	}
}
