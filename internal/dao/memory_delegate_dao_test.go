package dao

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

func TestMemoryDelegateUpdateIsPartial(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDelegateDao()
	require.NoError(t, d.Create(ctx, &model.Delegate{
		ID: "d1", AccountID: "acc", IP: "10.0.0.1", HostName: "h1", Version: "1.0.0",
		Status: consts.DELEGATE_DISABLED, SupportedTaskTypes: model.NewTaskTypeSet(consts.TASK_TYPE_ECHO),
	}))

	hb := int64(1234)
	connected := true
	got, err := d.Update(ctx, "acc", "d1", model.DelegateUpdate{LastHeartbeat: &hb, Connected: &connected})
	require.NoError(t, err)
	assert.Equal(t, consts.DELEGATE_DISABLED, got.Status)
	assert.Equal(t, hb, got.LastHeartbeat)
	assert.True(t, got.Connected)
	assert.Equal(t, "1.0.0", got.Version)

	found, err := d.FindByHost(ctx, "acc", "10.0.0.1", "h1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "d1", found.ID)

	missing, err := d.FindByHost(ctx, "acc", "10.0.0.2", "h1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryDelegateMarkDisconnected(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDelegateDao()
	require.NoError(t, d.Create(ctx, &model.Delegate{ID: "old", AccountID: "acc", Connected: true, LastHeartbeat: 100}))
	require.NoError(t, d.Create(ctx, &model.Delegate{ID: "new", AccountID: "acc", Connected: true, LastHeartbeat: 900}))

	n, err := d.MarkDisconnected(ctx, 500)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	old, _ := d.Get(ctx, "acc", "old")
	fresh, _ := d.Get(ctx, "acc", "new")
	assert.False(t, old.Connected)
	assert.True(t, fresh.Connected)

	_, err = d.Get(ctx, "other", "old")
	assert.ErrorIs(t, err, ErrNotFound)
}
