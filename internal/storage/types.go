package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the ledger. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
	// Retain bounds how many records are kept. 0 keeps everything.
	Retain int
}

// RunRecord describes one invocation of the dispatcher.
type RunRecord struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Label      string    `json:"label"`
	Step       int       `json:"step"`
	InCycle    bool      `json:"in_cycle"`
	SubCycle   string    `json:"sub_cycle"`
	Backlog    int       `json:"backlog"`
	Size       int       `json:"size"`
	Dispatched int       `json:"dispatched"`
	Waves      int       `json:"waves"`
	SpanMS     int64     `json:"span_ms"`
	Skipped    string    `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms"`
}
