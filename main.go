package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Clever/kayvee-go/v7/logger"

	"github.com/lockbox-app/lockbox-migrate/deploy"
	"github.com/lockbox-app/lockbox-migrate/migrator"
	dynamodbstore "github.com/lockbox-app/lockbox-migrate/store/dynamodb"
)

var log = logger.New("lockbox-migrate")

// reducing MaxRetries to avoid long backoffs when writes fail; the restore
// loop does its own failure accounting
var awsMaxRetries = 4

type cliFlags struct {
	region          string
	stackName       string
	userPoolID      string
	snapshotDir     string
	templateRenamed string
	templateFinal   string
	autoConfirm     bool
	pollInterval    time.Duration
	maxPollAttempts int
}

func main() {
	// local overrides for development; absence is fine
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, migrator.ErrConfirmationDeclined) {
			log.Info("cancelled-by-operator")
			os.Exit(2)
		}
		log.ErrorD("fatal", logger.M{"error": err.Error()})
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "lockbox-migrate",
		Short:         "Migrate lockbox DynamoDB tables from snake_case to camelCase attributes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.region, "region", getEnvVarOrDefault("AWS_REGION", "us-east-1"), "AWS region")
	pf.StringVar(&flags.stackName, "stack-name", os.Getenv("LOCKBOX_STACK_NAME"), "CloudFormation stack owning the tables")
	pf.StringVar(&flags.userPoolID, "user-pool-id", os.Getenv("LOCKBOX_USER_POOL_ID"), "existing Cognito user pool passed through to the stack")
	pf.StringVar(&flags.snapshotDir, "snapshot-dir", "", "directory for table snapshots (default backups/<timestamp>)")
	pf.StringVar(&flags.templateRenamed, "template-renamed", "templates/lockbox-renamed.yml", "template with renamed logical table resources")
	pf.StringVar(&flags.templateFinal, "template-final", "templates/lockbox.yml", "template restoring the original logical names")
	pf.BoolVar(&flags.autoConfirm, "yes", false, "skip confirmation prompts (unattended mode)")
	pf.DurationVar(&flags.pollInterval, "poll-interval", 5*time.Second, "interval between readiness probes")
	pf.IntVar(&flags.maxPollAttempts, "max-poll-attempts", 60, "readiness probes before giving up")

	root.AddCommand(
		newBackupCmd(flags),
		newRestoreCmd(flags),
		newMigrateCmd(flags, false),
		newMigrateCmd(flags, true),
	)
	return root
}

func newBackupCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <output-dir>",
		Short: "Snapshot every table to <output-dir>, one file per table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.snapshotDir = args[0]
			m, err := buildMigrator(flags, false)
			if err != nil {
				return err
			}
			_, err = m.Backup(cmd.Context())
			return err
		},
	}
}

func newRestoreCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-dir>",
		Short: "Replay snapshots from <snapshot-dir> into the live tables, renaming attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.snapshotDir = args[0]
			m, err := buildMigrator(flags, false)
			if err != nil {
				return err
			}
			_, err = m.Restore(cmd.Context())
			return err
		},
	}
}

func newMigrateCmd(flags *cliFlags, clean bool) *cobra.Command {
	use := "migrate"
	short := "Run the full backup, schema replace, restore, verify pipeline"
	if clean {
		use = "clean-migrate"
		short = "Like migrate, but deletes leftover physical tables before the schema apply"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clean && flags.userPoolID == "" {
				return fmt.Errorf("clean-migrate requires --user-pool-id")
			}
			m, err := buildMigrator(flags, clean)
			if err != nil {
				return err
			}
			_, err = m.Run(cmd.Context())
			return err
		},
	}
}

func buildMigrator(flags *cliFlags, clean bool) (*migrator.Migrator, error) {
	snapshotDir := flags.snapshotDir
	if snapshotDir == "" {
		snapshotDir = filepath.Join("backups", time.Now().Format("20060102-150405"))
	}

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		Config: aws.Config{
			Region:     aws.String(flags.region),
			MaxRetries: &awsMaxRetries,
		},
		SharedConfigState: session.SharedConfigEnable,
	}))

	cfg := migrator.Config{
		Region:          flags.region,
		StackName:       flags.stackName,
		UserPoolID:      flags.userPoolID,
		SnapshotDir:     snapshotDir,
		TemplateRenamed: flags.templateRenamed,
		TemplateFinal:   flags.templateFinal,
		AutoConfirm:     flags.autoConfirm,
		Clean:           clean,
		PollInterval:    flags.pollInterval,
		MaxPollAttempts: flags.maxPollAttempts,
	}
	deps := migrator.Deps{
		Tables:  dynamodbstore.New(dynamodb.New(sess)),
		Applier: deploy.New(cloudformation.New(sess), flags.pollInterval, flags.maxPollAttempts),
		STS:     sts.New(sess),
		Cognito: cognitoidentityprovider.New(sess),
	}
	return migrator.New(cfg, deps)
}

func getEnvVarOrDefault(envVarName, defaultIfEmpty string) string {
	value := os.Getenv(envVarName)
	if value == "" {
		value = defaultIfEmpty
	}
	return value
}
