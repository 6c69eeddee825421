// Package tracker maintains the per-file baselines the poll cycle diffs
// against: the last-seen version stamp and the set of seen comment IDs.
package tracker

import (
	"log"
	"time"
)

const defaultFetchTimeout = 15 * time.Second

// Config carries the knobs shared by both trackers.
type Config struct {
	// FetchTimeout bounds each upstream call. Zero means 15 seconds.
	FetchTimeout time.Duration
	// Logf receives warnings and soft failures. Nil means log.Printf.
	Logf func(format string, args ...any)
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}
