package snapshot

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockbox-app/lockbox-migrate/resources"
	"github.com/lockbox-app/lockbox-migrate/store"
	"github.com/lockbox-app/lockbox-migrate/store/memory"
)

func TestCaptureLoadRoundTrip(t *testing.T) {
	mem := memory.New()
	mem.CreateTable("boxes", "id")
	recs := []resources.Record{
		{
			"id":      {S: aws.String("1")},
			"box_id":  {S: aws.String("b-1")},
			"count":   {N: aws.String("42")},
			"deleted": {BOOL: aws.Bool(false)},
			"note":    {NULL: aws.Bool(true)},
			"nested": {M: map[string]*dynamodb.AttributeValue{
				"inner": {L: []*dynamodb.AttributeValue{
					{S: aws.String("x")},
					{N: aws.String("7")},
				}},
			}},
		},
		{
			"id":     {S: aws.String("2")},
			"box_id": {S: aws.String("b-2")},
		},
	}
	for _, r := range recs {
		require.NoError(t, mem.PutItem(context.Background(), "boxes", r))
	}

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	snap, err := s.Capture(context.Background(), mem, "boxes")
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.ItemCount)

	loaded, err := s.Load("boxes")
	require.NoError(t, err)
	assert.Equal(t, snap.TableName, loaded.TableName)
	assert.Equal(t, snap.ItemCount, loaded.ItemCount)
	assert.Equal(t, snap.Items, loaded.Items)
}

func TestCaptureEmptyTable(t *testing.T) {
	mem := memory.New()
	mem.CreateTable("boxes", "id")

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	snap, err := s.Capture(context.Background(), mem, "boxes")
	require.NoError(t, err)
	assert.EqualValues(t, 0, snap.ItemCount)

	loaded, err := s.Load("boxes")
	require.NoError(t, err)
	assert.EqualValues(t, 0, loaded.ItemCount)
	assert.Empty(t, loaded.Items)
	assert.NotNil(t, loaded.Items)
}

func TestCaptureMissingTable(t *testing.T) {
	mem := memory.New()
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	_, err = s.Capture(context.Background(), mem, "boxes")
	assert.Equal(t, store.NewNotFound("boxes"), err)
	assert.False(t, s.Exists("boxes"))
}

func TestCaptureOverwritesPriorSnapshot(t *testing.T) {
	mem := memory.New()
	mem.CreateTable("boxes", "id")
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Capture(context.Background(), mem, "boxes")
	require.NoError(t, err)

	require.NoError(t, mem.PutItem(context.Background(), "boxes",
		resources.Record{"id": {S: aws.String("1")}}))
	_, err = s.Capture(context.Background(), mem, "boxes")
	require.NoError(t, err)

	loaded, err := s.Load("boxes")
	require.NoError(t, err)
	assert.EqualValues(t, 1, loaded.ItemCount)
}

func TestLoadMissingSnapshot(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("boxes")
	var nf NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "boxes", nf.Table)
}
