package migrator

import (
	"fmt"
	"time"

	"github.com/lockbox-app/lockbox-migrate/resources"
)

// Config is the immutable configuration for one migration run. It is built
// once by the caller and passed to New; the driver never mutates it.
type Config struct {
	// Region and StackName identify the CloudFormation stack owning the
	// tables.
	Region    string
	StackName string

	// UserPoolID, when set, is validated at preflight and passed through to
	// the stack as the ExistingUserPoolId parameter so the pool is never
	// recreated by a template apply.
	UserPoolID string

	// SnapshotDir is where table snapshots are written and read.
	SnapshotDir string

	// TemplateRenamed is the path of the template that replaces table
	// resources under new logical identifiers (the destructive apply).
	// TemplateFinal is the path of the template that moves the logical
	// identifiers back to their original names without touching contents.
	TemplateRenamed string
	TemplateFinal   string

	// AutoConfirm bypasses the confirmation gate for unattended runs.
	AutoConfirm bool

	// Clean deletes any leftover physical tables before the destructive
	// apply (clean-migrate).
	Clean bool

	// Readiness polling budget: MaxPollAttempts probes, PollInterval apart.
	PollInterval    time.Duration
	MaxPollAttempts int

	// Tables defaults to the lockbox registry when empty.
	Tables []resources.TableSpec
}

func (c Config) withDefaults() Config {
	if len(c.Tables) == 0 {
		c.Tables = resources.LockboxTables()
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPollAttempts == 0 {
		c.MaxPollAttempts = 60
	}
	return c
}

func (c Config) validate(full bool) error {
	if c.SnapshotDir == "" {
		return fmt.Errorf("snapshot directory is required")
	}
	if !full {
		return nil
	}
	if c.StackName == "" {
		return fmt.Errorf("stack name is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.TemplateRenamed == "" || c.TemplateFinal == "" {
		return fmt.Errorf("both schema templates are required")
	}
	return nil
}
