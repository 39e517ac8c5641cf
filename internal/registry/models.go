package registry

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Sync record statuses. Once a record reaches StatusCreated with an
// external id it is never re-submitted to the provider.
const (
	StatusPending = "pending"
	StatusCreated = "created"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// SyncResult is the outcome of attempting to sync one task to an
// external provider.
type SyncResult struct {
	LocalID    string
	Provider   string
	ExternalID string // provider's task id, empty unless created
	Status     string
	Error      string
}

// RunSummary aggregates one bridge run. The latest summary per bridge
// is overwritten each run; every summary is also appended to a bounded
// history log.
type RunSummary struct {
	ID             string    `json:"id,omitempty"` // history row id, assigned on save
	Bridge         string    `json:"bridge"`
	FinishedAt     time.Time `json:"finished_at"`
	NotesFound     int       `json:"notes_found"`
	Converted      int       `json:"converted"`
	Skipped        int       `json:"skipped"`
	NoText         int       `json:"no_text"`
	ToolMissing    int       `json:"tool_missing"`
	ToolFailed     int       `json:"tool_failed"`
	TasksTotal     int       `json:"tasks_total"`
	TasksOpen      int       `json:"tasks_open"`
	TasksCompleted int       `json:"tasks_completed"`
	SourceMissing  bool      `json:"source_missing"`
	VaultMissing   bool      `json:"vault_missing"`
}

// HasErrors reports whether the run hit a structural error or any
// tool-level failure. Drives the "errors" notification policy.
func (s RunSummary) HasErrors() bool {
	return s.SourceMissing || s.VaultMissing || s.ToolMissing > 0 || s.ToolFailed > 0
}

// TaskCounts summarizes extracted tasks for one bridge.
type TaskCounts struct {
	Total     int `json:"total"`
	Open      int `json:"open"`
	Completed int `json:"completed"`
}

// TaskState is a task joined with its sync record for one provider.
type TaskState struct {
	LocalID    string `json:"local_id"`
	Bridge     string `json:"bridge"`
	NotePath   string `json:"note_path"`
	Line       int    `json:"line"`
	Title      string `json:"title"`
	Completed  bool   `json:"completed"`
	Status     string `json:"status"` // empty if never attempted for this provider
	ExternalID string `json:"external_id,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}
