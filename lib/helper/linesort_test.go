package helper

import (
	"reflect"
	"testing"
)

func TestSortFlowLinesNumericLeadingField(t *testing.T) {
	lines := []string{"5 x", "2 y", "10 z"}
	SortFlowLines(lines)
	want := []string{"2 y", "5 x", "10 z"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestSortFlowLinesTimestampTieFallsBackToString(t *testing.T) {
	lines := []string{
		"2019-06-01 12:00:02.000 rec-b",
		"2019-06-01 12:00:01.000 rec-a",
	}
	SortFlowLines(lines)
	if lines[0] != "2019-06-01 12:00:01.000 rec-a" {
		t.Fatalf("expected chronological order, got %v", lines)
	}
}

func TestSortFlowLinesFractionalLeadingField(t *testing.T) {
	lines := []string{"10.5 a", "10.25 b", "2.75 c"}
	SortFlowLines(lines)
	want := []string{"2.75 c", "10.25 b", "10.5 a"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestLeadingNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"2017-07-07 x", 2017, true},
		{"5 x", 5, true},
		{"0.5s", 0.5, true},
		{"summary", 0, false},
		{"", 0, false},
		{"7.", 7, true},
	}
	for _, c := range cases {
		got, ok := leadingNumber(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("leadingNumber(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}
