package resources

import "fmt"

// StepStatus is the outcome of one pipeline step within a migration run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step names, in pipeline order.
const (
	StepPreflight     = "preflight"
	StepBackup        = "backup"
	StepSchemaApply   = "schema-apply"
	StepReadiness     = "readiness"
	StepRestore       = "restore"
	StepSchemaRestore = "schema-restore"
	StepVerify        = "verify"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Name   string
	Status StepStatus
	Err    error
}

// TableCounts accumulates per-table item counts during restore and verify.
type TableCounts struct {
	Expected int64
	Restored int64
	Failed   int64
}

// MigrationRun is the in-memory state of one end-to-end migration attempt.
// It is owned exclusively by the driver for its lifetime and is not
// persisted beyond the process except through the snapshot files on disk.
type MigrationRun struct {
	SnapshotDir string
	Steps       []*StepResult
	Counts      map[string]*TableCounts
}

// NewMigrationRun returns a run with every step pending.
func NewMigrationRun(snapshotDir string, steps ...string) *MigrationRun {
	run := &MigrationRun{
		SnapshotDir: snapshotDir,
		Counts:      map[string]*TableCounts{},
	}
	for _, name := range steps {
		run.Steps = append(run.Steps, &StepResult{Name: name, Status: StepPending})
	}
	return run
}

// Step returns the result record for the named step.
func (r *MigrationRun) Step(name string) *StepResult {
	for _, s := range r.Steps {
		if s.Name == name {
			return s
		}
	}
	panic(fmt.Sprintf("unknown step %q", name))
}

// Table returns the counts for a table, creating them on first use.
func (r *MigrationRun) Table(name string) *TableCounts {
	if _, ok := r.Counts[name]; !ok {
		r.Counts[name] = &TableCounts{}
	}
	return r.Counts[name]
}

// FailedItems returns the total number of item writes that failed across
// all tables. A non-zero value must be visible in the run's final status.
func (r *MigrationRun) FailedItems() int64 {
	var n int64
	for _, c := range r.Counts {
		n += c.Failed
	}
	return n
}
