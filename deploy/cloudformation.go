// Package deploy is the narrow collaborator interface to the declarative
// infrastructure tool. The migration driver only needs "apply this template
// to this stack, then wait for it to converge"; everything else about the
// deployment tool stays out of scope.
package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/cloudformation/cloudformationiface"

	"github.com/Clever/kayvee-go/v7/logger"

	"github.com/lockbox-app/lockbox-migrate/store"
	"github.com/lockbox-app/lockbox-migrate/waiter"
)

var log = logger.New("lockbox-migrate")

// Applier applies a template to a stack and waits for convergence.
type Applier interface {
	Apply(ctx context.Context, stackName, templateBody string, params map[string]string) error
	WaitForStack(ctx context.Context, stackName string) error
}

// ApplyError is a fatal failure of the infrastructure tool; the pipeline
// halts before any dependent readiness or restore step runs.
type ApplyError struct {
	Stack string
	Cause error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("applying template to stack %s: %v", e.Stack, e.Cause)
}

func (e *ApplyError) Unwrap() error {
	return e.Cause
}

// CloudFormation implements Applier against the AWS CloudFormation API.
type CloudFormation struct {
	cfn          cloudformationiface.CloudFormationAPI
	pollInterval time.Duration
	maxAttempts  int
}

// New returns a CloudFormation applier that polls stack status every
// pollInterval, up to maxAttempts times, when waiting for convergence.
func New(cfn cloudformationiface.CloudFormationAPI, pollInterval time.Duration, maxAttempts int) *CloudFormation {
	return &CloudFormation{
		cfn:          cfn,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

func toParameters(params map[string]string) []*cloudformation.Parameter {
	out := []*cloudformation.Parameter{}
	for k, v := range params {
		out = append(out, &cloudformation.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(v),
		})
	}
	return out
}

// Apply updates the stack with the template, falling back to a create when
// the stack does not exist yet. "No updates are to be performed" counts as
// success: the stack already matches the template.
func (c *CloudFormation) Apply(ctx context.Context, stackName, templateBody string, params map[string]string) error {
	_, err := c.cfn.UpdateStackWithContext(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(templateBody),
		Parameters:   toParameters(params),
		Capabilities: aws.StringSlice([]string{
			cloudformation.CapabilityCapabilityIam,
			cloudformation.CapabilityCapabilityNamedIam,
		}),
	})
	if err == nil {
		log.InfoD("stack-update-started", logger.M{"stack": stackName})
		return nil
	}
	if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == "ValidationError" {
		msg := awsErr.Message()
		if strings.Contains(msg, "No updates are to be performed") {
			log.InfoD("stack-no-changes", logger.M{"stack": stackName})
			return nil
		}
		if strings.Contains(msg, "does not exist") {
			_, err = c.cfn.CreateStackWithContext(ctx, &cloudformation.CreateStackInput{
				StackName:    aws.String(stackName),
				TemplateBody: aws.String(templateBody),
				Parameters:   toParameters(params),
				Capabilities: aws.StringSlice([]string{
					cloudformation.CapabilityCapabilityIam,
					cloudformation.CapabilityCapabilityNamedIam,
				}),
			})
			if err != nil {
				return &ApplyError{Stack: stackName, Cause: err}
			}
			log.InfoD("stack-create-started", logger.M{"stack": stackName})
			return nil
		}
	}
	return &ApplyError{Stack: stackName, Cause: err}
}

// WaitForStack blocks until the stack reaches a *_COMPLETE status. Rollback
// and failure statuses end the wait immediately with an ApplyError.
func (c *CloudFormation) WaitForStack(ctx context.Context, stackName string) error {
	w := waiter.Waiter{
		Resource:    fmt.Sprintf("stack %s", stackName),
		Probe:       c.stackProbe(stackName),
		Interval:    c.pollInterval,
		MaxAttempts: c.maxAttempts,
	}
	return w.Wait(ctx)
}

func (c *CloudFormation) stackProbe(stackName string) waiter.Probe {
	return func(ctx context.Context) (store.ReadinessState, error) {
		out, err := c.cfn.DescribeStacksWithContext(ctx, &cloudformation.DescribeStacksInput{
			StackName: aws.String(stackName),
		})
		if err != nil {
			if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == "ValidationError" &&
				strings.Contains(awsErr.Message(), "does not exist") {
				return store.ReadinessState{Status: store.StatusNotFound}, nil
			}
			return store.ReadinessState{}, err
		}
		if len(out.Stacks) == 0 {
			return store.ReadinessState{Status: store.StatusNotFound}, nil
		}
		status := aws.StringValue(out.Stacks[0].StackStatus)
		switch {
		case status == cloudformation.StackStatusCreateComplete,
			status == cloudformation.StackStatusUpdateComplete:
			return store.ReadinessState{Status: store.StatusActive}, nil
		case strings.Contains(status, "ROLLBACK"), strings.HasSuffix(status, "_FAILED"):
			return store.ReadinessState{}, &ApplyError{
				Stack: stackName,
				Cause: fmt.Errorf("stack entered %s", status),
			}
		default:
			return store.ReadinessState{Status: store.StatusTransitioning, Detail: status}, nil
		}
	}
}
