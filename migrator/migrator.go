// Package migrator sequences the migration pipeline: backup, destructive
// schema apply, readiness convergence, restore with attribute renaming,
// schema restore, and verification. Steps run strictly in order; each step's
// postcondition is the next step's precondition.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider/cognitoidentityprovideriface"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/Clever/kayvee-go/v7/logger"

	"github.com/lockbox-app/lockbox-migrate/deploy"
	"github.com/lockbox-app/lockbox-migrate/rename"
	"github.com/lockbox-app/lockbox-migrate/resources"
	"github.com/lockbox-app/lockbox-migrate/snapshot"
	"github.com/lockbox-app/lockbox-migrate/store"
	"github.com/lockbox-app/lockbox-migrate/verify"
	"github.com/lockbox-app/lockbox-migrate/waiter"
)

var log = logger.New("lockbox-migrate")

// Deps are the external collaborators the driver orchestrates. Tables is
// required; Applier, STS, and Cognito are required only for a full Run.
type Deps struct {
	Tables  store.TableClient
	Applier deploy.Applier
	STS     stsiface.STSAPI
	Cognito cognitoidentityprovideriface.CognitoIdentityProviderAPI
	Confirm Confirmer
}

// Migrator drives one migration run at a time. It assumes the operator does
// not run two migrations concurrently against the same stack.
type Migrator struct {
	cfg     Config
	tables  store.TableClient
	snaps   *snapshot.Store
	applier deploy.Applier
	sts     stsiface.STSAPI
	cognito cognitoidentityprovideriface.CognitoIdentityProviderAPI
	confirm Confirmer

	// template bodies, read during preflight
	templateRenamed string
	templateFinal   string
}

// New builds a driver over the given config and collaborators.
func New(cfg Config, deps Deps) (*Migrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(false); err != nil {
		return nil, err
	}
	if deps.Tables == nil {
		return nil, fmt.Errorf("a table client is required")
	}
	snaps, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		return nil, err
	}
	confirm := deps.Confirm
	if cfg.AutoConfirm {
		confirm = AutoConfirmer()
	} else if confirm == nil {
		confirm = StdinConfirmer(os.Stdin, os.Stderr)
	}
	return &Migrator{
		cfg:     cfg,
		tables:  deps.Tables,
		snaps:   snaps,
		applier: deps.Applier,
		sts:     deps.STS,
		cognito: deps.Cognito,
		confirm: confirm,
	}, nil
}

// Run executes the full pipeline. A fatal step halts it immediately and is
// returned as a *StepError with the failing step name; recoverable per-item
// failures let the pipeline finish but make the returned error non-nil so
// the run cannot be mistaken for a clean one.
func (m *Migrator) Run(ctx context.Context) (*resources.MigrationRun, error) {
	run := resources.NewMigrationRun(m.cfg.SnapshotDir,
		resources.StepPreflight,
		resources.StepBackup,
		resources.StepSchemaApply,
		resources.StepReadiness,
		resources.StepRestore,
		resources.StepSchemaRestore,
		resources.StepVerify,
	)
	// preallocate counts so per-table goroutines never write the map
	for _, spec := range m.cfg.Tables {
		run.Table(spec.Name)
	}

	if err := m.runFatal(ctx, run, resources.StepPreflight, m.preflight); err != nil {
		return run, err
	}
	if err := m.runFatal(ctx, run, resources.StepBackup, func(ctx context.Context) error {
		return m.backup(ctx, run)
	}); err != nil {
		return run, err
	}

	prompt := fmt.Sprintf(
		"About to apply %s to stack %s. The current physical tables will be destroyed and recreated; the only copy of their data is the snapshot in %s.",
		m.cfg.TemplateRenamed, m.cfg.StackName, m.cfg.SnapshotDir)
	if !m.confirm(prompt) {
		m.skipFrom(run, resources.StepSchemaApply)
		log.Info("run-declined")
		m.logSummary(run)
		return run, ErrConfirmationDeclined
	}

	if err := m.runFatal(ctx, run, resources.StepSchemaApply, func(ctx context.Context) error {
		if m.cfg.Clean {
			for _, spec := range m.cfg.Tables {
				if err := m.tables.DeleteTable(ctx, spec.Name); err != nil {
					return err
				}
				log.InfoD("clean-table-deleted", logger.M{"table": spec.Name})
			}
		}
		return m.applySchema(ctx, m.templateRenamed)
	}); err != nil {
		return run, err
	}

	if err := m.runFatal(ctx, run, resources.StepReadiness, m.awaitTables); err != nil {
		return run, err
	}

	var errs *multierror.Error
	restoreStep := run.Step(resources.StepRestore)
	if restoreErrs := m.restore(ctx, run); restoreErrs.ErrorOrNil() != nil {
		// recoverable: the step completed, but its failures stay visible
		restoreStep.Status = resources.StepFailed
		restoreStep.Err = restoreErrs.ErrorOrNil()
		errs = multierror.Append(errs, restoreErrs.Errors...)
	} else {
		restoreStep.Status = resources.StepSucceeded
	}

	if err := m.runFatal(ctx, run, resources.StepSchemaRestore, func(ctx context.Context) error {
		return m.applySchema(ctx, m.templateFinal)
	}); err != nil {
		return run, err
	}

	verifyStep := run.Step(resources.StepVerify)
	if verifyErrs := m.verifyTables(ctx, run); verifyErrs.ErrorOrNil() != nil {
		verifyStep.Status = resources.StepFailed
		verifyStep.Err = verifyErrs.ErrorOrNil()
		errs = multierror.Append(errs, verifyErrs.Errors...)
	} else {
		verifyStep.Status = resources.StepSucceeded
	}

	m.logSummary(run)
	return run, errs.ErrorOrNil()
}

// Backup captures every configured table into the snapshot directory,
// skipping tables that do not exist.
func (m *Migrator) Backup(ctx context.Context) (*resources.MigrationRun, error) {
	run := resources.NewMigrationRun(m.cfg.SnapshotDir, resources.StepBackup)
	for _, spec := range m.cfg.Tables {
		run.Table(spec.Name)
	}
	err := m.runFatal(ctx, run, resources.StepBackup, func(ctx context.Context) error {
		return m.backup(ctx, run)
	})
	return run, err
}

// Restore replays every snapshot in the directory through the rename
// transform into the live tables. Per-item failures are counted, not fatal.
func (m *Migrator) Restore(ctx context.Context) (*resources.MigrationRun, error) {
	run := resources.NewMigrationRun(m.cfg.SnapshotDir, resources.StepRestore)
	for _, spec := range m.cfg.Tables {
		run.Table(spec.Name)
	}
	step := run.Step(resources.StepRestore)
	errs := m.restore(ctx, run)
	if errs.ErrorOrNil() != nil {
		step.Status = resources.StepFailed
		step.Err = errs.ErrorOrNil()
	} else {
		step.Status = resources.StepSucceeded
	}
	m.logSummary(run)
	return run, errs.ErrorOrNil()
}

// runFatal executes one step; any error is fatal for the run.
func (m *Migrator) runFatal(ctx context.Context, run *resources.MigrationRun, step string, fn func(context.Context) error) error {
	log.InfoD("step-start", logger.M{"step": step})
	if err := fn(ctx); err != nil {
		res := run.Step(step)
		res.Status = resources.StepFailed
		res.Err = err
		m.skipFrom(run, "")
		log.ErrorD("step-failed", logger.M{"step": step, "error": err.Error()})
		m.logSummary(run)
		return newStepError(step, err)
	}
	run.Step(step).Status = resources.StepSucceeded
	log.InfoD("step-succeeded", logger.M{"step": step})
	return nil
}

// skipFrom marks the named step and every pending step after it as skipped.
// With an empty name only pending steps are skipped.
func (m *Migrator) skipFrom(run *resources.MigrationRun, from string) {
	skipping := from == ""
	for _, s := range run.Steps {
		if s.Name == from {
			skipping = true
		}
		if skipping && s.Status == resources.StepPending {
			s.Status = resources.StepSkipped
		}
	}
}

func (m *Migrator) backup(ctx context.Context, run *resources.MigrationRun) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range m.cfg.Tables {
		spec := spec
		counts := run.Table(spec.Name)
		g.Go(func() error {
			snap, err := m.snaps.Capture(gctx, m.tables, spec.Name)
			if err != nil {
				var nf store.NotFound
				if errors.As(err, &nf) {
					log.WarnD("backup-skip", logger.M{
						"table":  spec.Name,
						"reason": "table does not exist",
					})
					return nil
				}
				return err
			}
			counts.Expected = snap.ItemCount
			return nil
		})
	}
	return g.Wait()
}

func (m *Migrator) applySchema(ctx context.Context, templateBody string) error {
	if m.applier == nil {
		return fmt.Errorf("no applier configured")
	}
	params := map[string]string{}
	if m.cfg.UserPoolID != "" {
		params["ExistingUserPoolId"] = m.cfg.UserPoolID
	}
	if err := m.applier.Apply(ctx, m.cfg.StackName, templateBody, params); err != nil {
		return err
	}
	return m.applier.WaitForStack(ctx, m.cfg.StackName)
}

// awaitTables blocks until every expected table is serving. A timeout here
// leaves the infrastructure partially converged; no rollback is attempted.
func (m *Migrator) awaitTables(ctx context.Context) error {
	for _, spec := range m.cfg.Tables {
		name := spec.Name
		w := waiter.Waiter{
			Resource: fmt.Sprintf("table %s", name),
			Probe: func(ctx context.Context) (store.ReadinessState, error) {
				return m.tables.Describe(ctx, name)
			},
			Interval:    m.cfg.PollInterval,
			MaxAttempts: m.cfg.MaxPollAttempts,
		}
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) restore(ctx context.Context, run *resources.MigrationRun) *multierror.Error {
	g, gctx := errgroup.WithContext(ctx)
	tableErrs := make([]error, len(m.cfg.Tables))
	for i, spec := range m.cfg.Tables {
		i, spec := i, spec
		counts := run.Table(spec.Name)
		g.Go(func() error {
			tableErrs[i] = m.restoreTable(gctx, spec, counts)
			return nil
		})
	}
	g.Wait() // goroutines only report through tableErrs

	var errs *multierror.Error
	for _, err := range tableErrs {
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

func (m *Migrator) restoreTable(ctx context.Context, spec resources.TableSpec, counts *resources.TableCounts) error {
	snap, err := m.snaps.Load(spec.Name)
	if err != nil {
		// no source data for this table; its restore cannot proceed
		return err
	}
	counts.Expected = snap.ItemCount

	for i, rec := range snap.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		// transform strictly precedes put
		out := rename.Transform(spec.Rules, rec)
		if err := m.tables.PutItem(ctx, spec.Name, out); err != nil {
			counts.Failed++
			log.WarnD("restore-item-failed", logger.M{
				"table": spec.Name,
				"error": err.Error(),
			})
			continue
		}
		counts.Restored++
		if (i+1)%100 == 0 {
			log.InfoD("restore-progress", logger.M{
				"table":    spec.Name,
				"restored": counts.Restored,
				"failed":   counts.Failed,
				"expected": snap.ItemCount,
			})
		}
	}
	log.InfoD("restore-table-done", logger.M{
		"table":    spec.Name,
		"restored": counts.Restored,
		"failed":   counts.Failed,
		"expected": snap.ItemCount,
	})
	if counts.Failed > 0 {
		return fmt.Errorf("table %s: %d of %d item writes failed", spec.Name, counts.Failed, snap.ItemCount)
	}
	return nil
}

func (m *Migrator) verifyTables(ctx context.Context, run *resources.MigrationRun) *multierror.Error {
	var errs *multierror.Error
	for _, spec := range m.cfg.Tables {
		counts := run.Table(spec.Name)
		if !m.snaps.Exists(spec.Name) {
			// newly-created table with no prior data; just confirm it serves
			state, err := m.tables.Describe(ctx, spec.Name)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if state.Status != store.StatusActive {
				errs = multierror.Append(errs,
					fmt.Errorf("table %s not serving (%s)", spec.Name, state.Status))
			}
			continue
		}
		snap, err := m.snaps.Load(spec.Name)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		actual, err := m.tables.ScanAll(ctx, spec.Name, func(resources.Record) bool { return true })
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		res := verify.Compare(snap.ItemCount, actual)
		counts.Expected = snap.ItemCount
		log.InfoD("verify-table", logger.M{
			"table":    spec.Name,
			"expected": res.Expected,
			"actual":   res.Actual,
			"match":    res.Match(),
		})
		if !res.Match() {
			// reported, never auto-corrected
			errs = multierror.Append(errs, fmt.Errorf("table %s: %s", spec.Name, res))
		}
	}
	return errs
}

func (m *Migrator) logSummary(run *resources.MigrationRun) {
	steps := logger.M{}
	for _, s := range run.Steps {
		steps[s.Name] = string(s.Status)
	}
	log.InfoD("run-steps", steps)
	for name, c := range run.Counts {
		log.InfoD("run-table-summary", logger.M{
			"table":    name,
			"expected": c.Expected,
			"restored": c.Restored,
			"failed":   c.Failed,
		})
	}
	if failed := run.FailedItems(); failed > 0 {
		log.ErrorD("run-item-failures", logger.M{"failed": failed})
	}
}
