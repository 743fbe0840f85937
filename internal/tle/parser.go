package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// UnknownName is assigned to bare element sets that carry no name line.
const UnknownName = "UNKNOWN"

// Parse reads NORAD element sets from r. Both the 3-line form (name line
// followed by the pair) and the bare 2-line form are accepted; bare entries
// get the name UNKNOWN. Malformed blocks are skipped with a warning log.
// Returns an error when no valid entry could be parsed at all.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i < len(lines); {
		var name, line1, line2 string

		if isLine1(lines[i]) && i+1 < len(lines) && isLine2(lines[i+1]) {
			// Bare pair with no name line.
			name = UnknownName
			line1 = lines[i]
			line2 = lines[i+1]
			i += 2
		} else {
			// Name line followed by the pair.
			if i+2 >= len(lines) {
				break
			}
			name = strings.TrimSpace(lines[i])
			line1 = lines[i+1]
			line2 = lines[i+2]
			i += 3
		}

		if !isLine1(line1) || !isLine2(line2) {
			logger.Warn("skipping malformed TLE block", "name", name)
			continue
		}

		entry, err := parseEntry(name, line1, line2)
		if err != nil {
			logger.Warn("skipping TLE entry", "name", name, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid TLEs parsed")
	}
	return entries, nil
}

func isLine1(s string) bool { return strings.HasPrefix(s, "1 ") }
func isLine2(s string) bool { return strings.HasPrefix(s, "2 ") }

// parseEntry extracts the NORAD ID (line1 cols 3-7) and epoch (cols 19-32)
// from a validated line pair.
func parseEntry(name, line1, line2 string) (Entry, error) {
	if len(line1) < 32 {
		return Entry{}, fmt.Errorf("line1 too short (%d chars)", len(line1))
	}

	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid NORAD ID %q", noradStr)
	}

	epochStr := strings.TrimSpace(line1[18:32])
	epoch, err := parseEpoch(epochStr)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid epoch %q: %w", epochStr, err)
	}

	return Entry{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// parseEpoch converts a TLE epoch in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 maps to the 2000s, 57-99 to the 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year: %w", err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day: %w", err)
	}

	// Day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
