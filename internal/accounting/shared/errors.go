// Package shared holds sentinel errors for the accounting domain.
package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit in base currency.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidPeriod indicates a missing or unusable period.
	ErrInvalidPeriod = errors.New("accounting: period is not open")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrPeriodLocked indicates a hard-closed period.
	ErrPeriodLocked = errors.New("accounting: period locked")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrDateOutOfRange indicates journal date mismatch.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
	// ErrSourceConflict indicates the source link already exists.
	ErrSourceConflict = errors.New("accounting: source link conflict")
	// ErrAccountNotFound indicates a missing ledger account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountInactive indicates posting to a deactivated account.
	ErrAccountInactive = errors.New("accounting: account inactive")
	// ErrRateUnavailable indicates no usable exchange rate.
	ErrRateUnavailable = errors.New("accounting: exchange rate unavailable")
	// ErrCompanyMismatch indicates an entity outside the active company scope.
	ErrCompanyMismatch = errors.New("accounting: entity belongs to another company")
)
