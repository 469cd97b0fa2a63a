package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iv(t *testing.T, start, end string) Interval {
	t.Helper()
	out, err := ParseInterval(start, end)
	require.NoError(t, err)
	return out
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b [2]string
		want bool
	}{
		{"identical", [2]string{"18:00", "19:00"}, [2]string{"18:00", "19:00"}, true},
		{"partial", [2]string{"18:00", "19:00"}, [2]string{"18:30", "19:30"}, true},
		{"contained", [2]string{"18:00", "20:00"}, [2]string{"18:30", "19:00"}, true},
		{"touching end", [2]string{"18:00", "19:00"}, [2]string{"19:00", "20:00"}, false},
		{"touching start", [2]string{"19:00", "20:00"}, [2]string{"18:00", "19:00"}, false},
		{"disjoint", [2]string{"08:00", "09:00"}, [2]string{"18:00", "19:00"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := iv(t, tt.a[0], tt.a[1])
			b := iv(t, tt.b[0], tt.b[1])
			assert.Equal(t, tt.want, Overlaps(a, b))
			assert.Equal(t, tt.want, Overlaps(b, a))
		})
	}
}

func TestSubtract(t *testing.T) {
	base := iv(t, "08:00", "12:00")
	got := Subtract(base, []Interval{iv(t, "10:00", "11:00"), iv(t, "07:00", "08:30"), iv(t, "10:30", "11:30")})
	assert.Equal(t, []Interval{iv(t, "08:30", "10:00"), iv(t, "11:30", "12:00")}, got)

	assert.Nil(t, Subtract(base, []Interval{iv(t, "00:00", "23:00")}))
	assert.Equal(t, []Interval{base}, Subtract(base, nil))
}

func TestBuildRangesMergesAndMarksBusy(t *testing.T) {
	slots := []SlotWindow{
		{SlotID: 2, Interval: iv(t, "18:00", "22:00")},
		{SlotID: 1, Interval: iv(t, "08:00", "10:00")},
	}
	busy := []Interval{iv(t, "19:00", "20:00"), iv(t, "20:00", "20:30")}

	got := BuildRanges(slots, busy)
	assert.Equal(t, []Range{
		{Start: "08:00", End: "10:00", Available: true, SlotID: 1},
		{Start: "18:00", End: "19:00", Available: true, SlotID: 2},
		{Start: "19:00", End: "20:30", Available: false, SlotID: 2},
		{Start: "20:30", End: "22:00", Available: true, SlotID: 2},
	}, got)
}

func TestClip(t *testing.T) {
	ranges := []Range{
		{Start: "08:00", End: "10:00", Available: true, SlotID: 1},
		{Start: "18:00", End: "22:00", Available: true, SlotID: 2},
	}
	got := Clip(ranges, iv(t, "09:00", "19:00"))
	assert.Equal(t, []Range{
		{Start: "09:00", End: "10:00", Available: true, SlotID: 1},
		{Start: "18:00", End: "19:00", Available: true, SlotID: 2},
	}, got)
}

func TestParseIntervalRejectsInvertedRange(t *testing.T) {
	_, err := ParseInterval("19:00", "18:00")
	require.Error(t, err)
	_, err = ParseInterval("7pm", "8pm")
	require.Error(t, err)
}
