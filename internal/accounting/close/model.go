// Package close drives the month-end close protocol for accounting periods.
package close

import (
	"errors"
	"time"
)

// RunStatus enumerates close run lifecycle values.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusCancelled  RunStatus = "CANCELLED"
)

// CloseRun tracks one attempt to close a period, with its checklist.
type CloseRun struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	PeriodID    int64           `json:"period_id"`
	Status      RunStatus       `json:"status"`
	StartedBy   int64           `json:"started_by"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Items       []ChecklistItem `json:"items,omitempty"`
}

// ChecklistItem is one gate that must pass before the hard close.
type ChecklistItem struct {
	ID     int64      `json:"id"`
	RunID  int64      `json:"run_id"`
	Key    string     `json:"key"`
	Label  string     `json:"label"`
	Done   bool       `json:"done"`
	DoneBy *int64     `json:"done_by,omitempty"`
	DoneAt *time.Time `json:"done_at,omitempty"`
}

// defaultChecklist is seeded into every new run.
var defaultChecklist = []ChecklistItem{
	{Key: "subledger_tie_out", Label: "Subledgers reconciled to GL control accounts"},
	{Key: "bank_reconciliation", Label: "Bank statements reconciled"},
	{Key: "fx_revaluation", Label: "Open foreign currency balances revalued"},
	{Key: "accruals_posted", Label: "Accruals and deferrals posted"},
	{Key: "suspense_cleared", Label: "Suspense accounts cleared"},
}

var (
	// ErrRunNotFound indicates a missing close run.
	ErrRunNotFound = errors.New("close: run not found")
	// ErrRunExists indicates the period already has an active run.
	ErrRunExists = errors.New("close: period already has an active close run")
	// ErrRunNotActive indicates the run is completed or cancelled.
	ErrRunNotActive = errors.New("close: run is not in progress")
	// ErrChecklistIncomplete blocks the hard close until all items pass.
	ErrChecklistIncomplete = errors.New("close: checklist items still pending")
	// ErrItemNotFound indicates a missing checklist item.
	ErrItemNotFound = errors.New("close: checklist item not found")
	// ErrReopenForbidden indicates a hard-closed period cannot reopen.
	ErrReopenForbidden = errors.New("close: hard-closed periods cannot be reopened")
)
