package booking

import (
	"testing"
	"time"
)

func TestRefundFor(t *testing.T) {
	tests := []struct {
		name  string
		paid  int64
		until time.Duration
		want  int64
	}{
		{"30h refunds everything", 20000, 30 * time.Hour, 20000},
		{"exactly 24h refunds everything", 20000, 24 * time.Hour, 20000},
		{"18h refunds half", 20000, 18 * time.Hour, 10000},
		{"exactly 12h refunds half", 20000, 12 * time.Hour, 10000},
		{"6h refunds nothing", 20000, 6 * time.Hour, 0},
		{"odd cents round down", 101, 18 * time.Hour, 50},
		{"nothing paid", 0, 48 * time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RefundFor(tt.paid, tt.until); got != tt.want {
				t.Fatalf("RefundFor(%d, %s) = %d, want %d", tt.paid, tt.until, got, tt.want)
			}
		})
	}
}
