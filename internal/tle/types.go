package tle

import (
	"math/rand"
	"sort"
	"time"
)

// Entry represents a single object's two-line element set.
type Entry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange is the span of element-set epochs in a loaded catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Epochs returns the epoch range over the given entries.
func Epochs(entries []Entry) EpochRange {
	if len(entries) == 0 {
		return EpochRange{}
	}
	r := EpochRange{Min: entries[0].Epoch, Max: entries[0].Epoch}
	for _, e := range entries[1:] {
		if e.Epoch.Before(r.Min) {
			r.Min = e.Epoch
		}
		if e.Epoch.After(r.Max) {
			r.Max = e.Epoch
		}
	}
	return r
}

// Sample returns a deterministic pseudo-random subset of n entries. A fixed
// seed keeps repeated runs over the same catalog comparable. The input is
// returned unchanged when it already has at most n entries.
func Sample(entries []Entry, n int, seed int64) []Entry {
	if n <= 0 || len(entries) <= n {
		return entries
	}

	idx := rand.New(rand.NewSource(seed)).Perm(len(entries))[:n]
	sort.Ints(idx)

	out := make([]Entry, 0, n)
	for _, i := range idx {
		out = append(out, entries[i])
	}
	return out
}
