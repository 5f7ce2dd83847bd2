package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudformation"
	"github.com/aws/aws-sdk-go/service/cloudformation/cloudformationiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockbox-app/lockbox-migrate/waiter"
)

type fakeCFN struct {
	cloudformationiface.CloudFormationAPI

	updateErr    error
	createErr    error
	createCalled bool
	updateCalled bool

	statuses      []string
	describeCalls int
}

func (f *fakeCFN) UpdateStackWithContext(ctx aws.Context, in *cloudformation.UpdateStackInput, opts ...request.Option) (*cloudformation.UpdateStackOutput, error) {
	f.updateCalled = true
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &cloudformation.UpdateStackOutput{}, nil
}

func (f *fakeCFN) CreateStackWithContext(ctx aws.Context, in *cloudformation.CreateStackInput, opts ...request.Option) (*cloudformation.CreateStackOutput, error) {
	f.createCalled = true
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &cloudformation.CreateStackOutput{}, nil
}

func (f *fakeCFN) DescribeStacksWithContext(ctx aws.Context, in *cloudformation.DescribeStacksInput, opts ...request.Option) (*cloudformation.DescribeStacksOutput, error) {
	i := f.describeCalls
	f.describeCalls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return &cloudformation.DescribeStacksOutput{
		Stacks: []*cloudformation.Stack{
			{StackStatus: aws.String(f.statuses[i])},
		},
	}, nil
}

func TestApplyUpdates(t *testing.T) {
	fake := &fakeCFN{}
	c := New(fake, time.Millisecond, 5)
	require.NoError(t, c.Apply(context.Background(), "lockbox", "{}", map[string]string{"Env": "prod"}))
	assert.True(t, fake.updateCalled)
	assert.False(t, fake.createCalled)
}

func TestApplyNoChangesIsSuccess(t *testing.T) {
	fake := &fakeCFN{
		updateErr: awserr.New("ValidationError", "No updates are to be performed.", nil),
	}
	c := New(fake, time.Millisecond, 5)
	require.NoError(t, c.Apply(context.Background(), "lockbox", "{}", nil))
	assert.False(t, fake.createCalled)
}

func TestApplyCreatesMissingStack(t *testing.T) {
	fake := &fakeCFN{
		updateErr: awserr.New("ValidationError", "Stack [lockbox] does not exist", nil),
	}
	c := New(fake, time.Millisecond, 5)
	require.NoError(t, c.Apply(context.Background(), "lockbox", "{}", nil))
	assert.True(t, fake.createCalled)
}

func TestApplyFailure(t *testing.T) {
	fake := &fakeCFN{
		updateErr: awserr.New("AccessDenied", "nope", nil),
	}
	c := New(fake, time.Millisecond, 5)
	err := c.Apply(context.Background(), "lockbox", "{}", nil)
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "lockbox", applyErr.Stack)
}

func TestWaitForStackConverges(t *testing.T) {
	fake := &fakeCFN{
		statuses: []string{
			cloudformation.StackStatusUpdateInProgress,
			cloudformation.StackStatusUpdateCompleteCleanupInProgress,
			cloudformation.StackStatusUpdateComplete,
		},
	}
	c := New(fake, time.Millisecond, 10)
	require.NoError(t, c.WaitForStack(context.Background(), "lockbox"))
	assert.Equal(t, 3, fake.describeCalls)
}

func TestWaitForStackRollbackIsFatal(t *testing.T) {
	fake := &fakeCFN{
		statuses: []string{
			cloudformation.StackStatusUpdateInProgress,
			cloudformation.StackStatusUpdateRollbackInProgress,
		},
	}
	c := New(fake, time.Millisecond, 10)
	err := c.WaitForStack(context.Background(), "lockbox")
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
}

func TestWaitForStackTimesOut(t *testing.T) {
	fake := &fakeCFN{
		statuses: []string{cloudformation.StackStatusUpdateInProgress},
	}
	c := New(fake, time.Millisecond, 2)
	err := c.WaitForStack(context.Background(), "lockbox")
	var timeout waiter.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 2, timeout.Attempts)
}
