package jsoncodec_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/rsg/codec/jsoncodec"
	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/port"
	"github.com/zero-day-ai/rsg/scene"
	"github.com/zero-day-ai/rsg/types"
	"github.com/zero-day-ai/rsg/update"
)

func TestReplication(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	buf := port.NewBuffer()
	primary := scene.New(scene.WithLogger(logger))
	primary.Dispatcher().Register(jsoncodec.NewEncoder(buf, jsoncodec.WithLogger(logger)), update.WithName("json"))

	table, err := primary.AddGroup(ctx, id.Root, types.Attrs("name", "table"))
	require.NoError(t, err)
	tf, err := primary.AddTransformNode(ctx, table, nil, types.Translation(0.5, 0, 0.8), types.FromMillis(10))
	require.NoError(t, err)
	cup, err := primary.AddGeometricNode(ctx, tf, types.Attrs("name", "cup"), types.NewCylinder(0.04, 0.1), types.FromMillis(10))
	require.NoError(t, err)
	require.NoError(t, primary.SetTransform(ctx, tf, types.Translation(0.6, 0, 0.8), types.FromMillis(20)))
	require.NoError(t, primary.SetNodeAttributes(ctx, cup, types.Attrs("name", "mug"), types.FromMillis(21)))
	require.NoError(t, primary.AddParent(ctx, cup, table))
	require.NoError(t, primary.RemoveParent(ctx, cup, table))

	replica := scene.New(scene.WithLogger(logger))
	for _, msg := range buf.Messages() {
		require.NoError(t, jsoncodec.ApplyJSON(ctx, msg, replica), string(msg))
	}

	assert.Equal(t, primary.GetNodes(ctx, nil), replica.GetNodes(ctx, nil))

	attrs, err := replica.GetNodeAttributes(ctx, cup)
	require.NoError(t, err)
	assert.Equal(t, types.Attrs("name", "mug"), attrs)

	want, err := primary.GetTransformForNode(ctx, cup, id.Root, types.TimeStamp{})
	require.NoError(t, err)
	got, err := replica.GetTransformForNode(ctx, cup, id.Root, types.TimeStamp{})
	require.NoError(t, err)
	assert.True(t, want.ApproxEqual(got, 1e-12))

	history, err := replica.GetTransformHistory(ctx, tf)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	parents, err := replica.GetNodeParents(ctx, cup)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{tf}, parents)
}

func TestApply_MapMessage(t *testing.T) {
	ctx := context.Background()
	store := scene.New()
	forced := id.MustParse("3e2d1c0b-a987-4654-8321-0fedcba98765")

	err := jsoncodec.Apply(ctx, map[string]any{
		"@worldmodeltype": "RSGUpdate",
		"operation":       "CREATE",
		"parentId":        id.Root.String(),
		"node": map[string]any{
			"@graphtype": "Node",
			"id":         forced.String(),
			"attributes": []any{map[string]any{"key": "name", "value": "sensor"}},
		},
	}, store)
	require.NoError(t, err)
	assert.True(t, store.Exists(forced))

	err = jsoncodec.Apply(ctx, map[string]any{
		"@worldmodeltype": "RSGUpdate",
		"operation":       "CREATE",
		"parentId":        id.Root.String(),
		"node":            map[string]any{"@graphtype": "Node", "id": forced.String()},
	}, store)
	assert.Error(t, err)
}
