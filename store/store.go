// Package store defines the gateway to the external key-value store. The
// migration driver only ever talks to tables through the TableClient
// interface; the dynamodb subpackage implements it against AWS and the
// memory subpackage implements it in-process for tests.
package store

import (
	"context"
	"fmt"

	"github.com/lockbox-app/lockbox-migrate/resources"
)

// ReadinessStatus is the trichotomy reported by Describe. NotFound and
// Transitioning are both "not yet ready" as far as polling is concerned.
type ReadinessStatus string

const (
	StatusActive        ReadinessStatus = "active"
	StatusNotFound      ReadinessStatus = "not-found"
	StatusTransitioning ReadinessStatus = "transitioning"
)

// ReadinessState is the result of probing an external resource. It is never
// persisted; every poll recomputes it.
type ReadinessState struct {
	Status ReadinessStatus
	// Detail carries the raw upstream status string for Transitioning
	// states (e.g. CREATING, UPDATING).
	Detail string
}

// TableClient is a stateless gateway to the external store's data plane.
type TableClient interface {
	// ScanAll produces every record currently in the table, paginating
	// transparently until the store reports no further continuation token.
	// fn returning false stops the scan early. The returned count is the
	// number of records actually produced to fn.
	ScanAll(ctx context.Context, table string, fn func(resources.Record) bool) (int64, error)

	// PutItem upserts a single record keyed by its primary key. Failures
	// are returned as *WriteFailure so callers can aggregate rather than
	// abort.
	PutItem(ctx context.Context, table string, rec resources.Record) error

	// Describe distinguishes "does not exist" from "exists but not yet
	// serving" from "exists and serving".
	Describe(ctx context.Context, table string) (ReadinessState, error)

	// DeleteTable removes a table. Deleting a non-existent table is a
	// success.
	DeleteTable(ctx context.Context, table string) error
}

// NotFound is returned when a table does not exist in the external store.
type NotFound struct {
	Table string
}

func (e NotFound) Error() string {
	return fmt.Sprintf("table not found: %s", e.Table)
}

// NewNotFound returns a NotFound error for the named table.
func NewNotFound(table string) NotFound {
	return NotFound{Table: table}
}

// Write failure reasons, derived from the upstream error code.
const (
	ReasonThrottled  = "throttled"
	ReasonValidation = "validation"
	ReasonNetwork    = "network"
)

// WriteFailure is a per-item put failure. It is never fatal by itself; the
// caller decides aggregate policy.
type WriteFailure struct {
	Table  string
	Reason string
	Cause  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("write to %s failed (%s): %v", e.Table, e.Reason, e.Cause)
}

func (e *WriteFailure) Unwrap() error {
	return e.Cause
}
