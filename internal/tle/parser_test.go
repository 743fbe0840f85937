package tle

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

const issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993"
const issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseNamedEntry(t *testing.T) {
	input := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"

	entries, err := Parse(strings.NewReader(input), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.Name != "ISS (ZARYA)" {
		t.Errorf("name = %q", e.Name)
	}
	if e.NORADID != 25544 {
		t.Errorf("NORAD ID = %d, want 25544", e.NORADID)
	}
	// Epoch 25045.18032407 → 2025, day 45 ≈ Feb 14.
	if e.Epoch.Year() != 2025 || e.Epoch.Month() != time.February || e.Epoch.Day() != 14 {
		t.Errorf("epoch = %v", e.Epoch)
	}
}

func TestParseBarePair(t *testing.T) {
	input := issLine1 + "\n" + issLine2 + "\n"

	entries, err := Parse(strings.NewReader(input), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Name != UnknownName {
		t.Errorf("bare pair name = %q, want %q", entries[0].Name, UnknownName)
	}
}

func TestParseMixedAndBlankLines(t *testing.T) {
	input := "SAT ONE\n" + issLine1 + "\n" + issLine2 + "\n\n" +
		issLine1 + "\n" + issLine2 + "\n"

	entries, err := Parse(strings.NewReader(input), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "SAT ONE" || entries[1].Name != UnknownName {
		t.Errorf("names = %q, %q", entries[0].Name, entries[1].Name)
	}
}

func TestParseSkipsMalformedBlock(t *testing.T) {
	input := "GOOD SAT\n" + issLine1 + "\n" + issLine2 + "\n" +
		"BAD SAT\nnot a line one\nnot a line two\n"

	entries, err := Parse(strings.NewReader(input), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (malformed block skipped)", len(entries))
	}
}

func TestParseNothingValid(t *testing.T) {
	if _, err := Parse(strings.NewReader("garbage\nmore garbage\n"), discardLogger()); err == nil {
		t.Fatal("expected error when nothing parses")
	}
	if _, err := Parse(strings.NewReader(""), discardLogger()); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestParseEpochCentury(t *testing.T) {
	// Year 98 → 1998.
	old := strings.Replace(issLine1, "25045.18032407", "98045.00000000", 1)
	entries, err := Parse(strings.NewReader(old+"\n"+issLine2+"\n"), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entries[0].Epoch.Year() != 1998 {
		t.Errorf("epoch year = %d, want 1998", entries[0].Epoch.Year())
	}
}

func TestEpochs(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{{Epoch: t2}, {Epoch: t1}}

	r := Epochs(entries)
	if !r.Min.Equal(t1) || !r.Max.Equal(t2) {
		t.Errorf("range = %v..%v", r.Min, r.Max)
	}
}

func TestSampleDeterministic(t *testing.T) {
	entries := make([]Entry, 50)
	for i := range entries {
		entries[i] = Entry{NORADID: i}
	}

	s1 := Sample(entries, 10, 42)
	s2 := Sample(entries, 10, 42)
	if len(s1) != 10 {
		t.Fatalf("sample size = %d, want 10", len(s1))
	}
	for i := range s1 {
		if s1[i].NORADID != s2[i].NORADID {
			t.Fatalf("sample not deterministic at %d: %d vs %d", i, s1[i].NORADID, s2[i].NORADID)
		}
	}

	// Small input passes through untouched.
	small := Sample(entries[:5], 10, 42)
	if len(small) != 5 {
		t.Errorf("small input resampled to %d entries", len(small))
	}
}
