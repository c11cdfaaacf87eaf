// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Run is one executed batch: what was submitted, what the environment said
// back, and when. Runs are immutable history — they are created once and
// never updated.
//
// The `json:"..."` tags tell Go's encoding/json package how to serialize
// this struct to/from JSON; Duration travels as nanoseconds.
type Run struct {
	ID        string        `json:"id"`
	Blocks    int           `json:"blocks"`
	ExitCode  int           `json:"exitCode"`
	Output    string        `json:"output"`
	FirstFile string        `json:"firstFile,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}
