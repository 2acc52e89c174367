package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/hubscan/hubspot"
)

func samplePipelines() []hubspot.Pipeline {
	return []hubspot.Pipeline{
		{
			ID:    "default",
			Label: "Sales Pipeline",
			Stages: []hubspot.PipelineStage{
				{ID: "appointmentscheduled", Label: "Appointment Scheduled", WinProbability: 0.2},
				{ID: "closedwon", Label: "Closed Won", DisplayOrder: 1, WinProbability: 1, Closed: true},
			},
		},
		{ID: "renewals", Label: "Renewals", DisplayOrder: 1},
	}
}

func TestReplacePipelines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePipelines(ctx, "tenant-1", samplePipelines()))

	got, err := store.GetPipelines(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "default", got[0].ID)
	require.Len(t, got[0].Stages, 2)
	assert.Equal(t, "closedwon", got[0].Stages[1].ID)
	assert.True(t, got[0].Stages[1].Closed)
}

func TestReplacePipelinesIsWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePipelines(ctx, "tenant-1", samplePipelines()))

	// A refresh that no longer includes a pipeline removes it.
	require.NoError(t, store.ReplacePipelines(ctx, "tenant-1",
		[]hubspot.Pipeline{{ID: "default", Label: "Sales Pipeline"}}))

	got, err := store.GetPipelines(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "default", got[0].ID)
}

func TestReplacePipelinesTenantIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePipelines(ctx, "tenant-1", samplePipelines()))
	require.NoError(t, store.ReplacePipelines(ctx, "tenant-2", nil))

	got, err := store.GetPipelines(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.GetPipelines(ctx, "tenant-2")
	require.NoError(t, err)
	assert.Empty(t, got)
}
