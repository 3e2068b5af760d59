package ytkmcp

import (
	"testing"
	"time"
)

func TestDefaultStrategy(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
		{0, time.Second},
		{-3, time.Second},
	}

	for _, tt := range tests {
		if got := DefaultStrategy(tt.attempt); got != tt.want {
			t.Errorf("DefaultStrategy(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNoBackoff(t *testing.T) {
	for _, attempt := range []int{0, 1, 5, 100} {
		if got := NoBackoff(attempt); got != 0 {
			t.Errorf("NoBackoff(%d) = %v, want 0", attempt, got)
		}
	}
}
