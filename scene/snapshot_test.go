package scene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
)

func TestSnapshot_RebuildsStore(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestStore(t)

	remote := id.NewGenerator().New()
	require.NoError(t, src.AddRemoteRootNode(ctx, remote, types.Attrs("rsg:agent", "r2")))

	a, err := src.AddGroup(ctx, id.Root, types.Attrs("name", "a"))
	require.NoError(t, err)
	b, err := src.AddGroup(ctx, id.Root, types.Attrs("name", "b"))
	require.NoError(t, err)
	tf, err := src.AddUncertainTransformNode(ctx, a, nil, types.Identity(), types.DiagonalUncertainty(1), types.FromMillis(1))
	require.NoError(t, err)
	require.NoError(t, src.SetTransform(ctx, tf, types.Translation(1, 2, 3), types.FromMillis(2)))
	geo, err := src.AddGeometricNode(ctx, tf, nil, types.NewCylinder(0.1, 0.3), types.FromMillis(1))
	require.NoError(t, err)
	require.NoError(t, src.AddParent(ctx, geo, b))
	conn, err := src.AddConnection(ctx, b, nil, []id.ID{a}, []id.ID{geo}, types.FromMillis(1), types.TimeStamp{})
	require.NoError(t, err)
	require.NoError(t, src.SetNodeAttributes(ctx, a, types.Attrs("name", "a2"), types.FromMillis(3)))
	orphan, err := src.AddNode(ctx, b, nil)
	require.NoError(t, err)
	require.NoError(t, src.RemoveParent(ctx, orphan, b))

	dst := New()
	for _, m := range src.Snapshot(ctx) {
		require.NoError(t, dst.Apply(ctx, m), "applying %s %s", m.Op, m.ID)
	}

	assert.Equal(t, src.GetNodes(ctx, nil), dst.GetNodes(ctx, nil))
	assert.Equal(t, src.GetRemoteRootNodes(ctx), dst.GetRemoteRootNodes(ctx))

	for _, nodeID := range src.GetNodes(ctx, nil) {
		wantParents, err := src.GetNodeParents(ctx, nodeID)
		require.NoError(t, err)
		gotParents, err := dst.GetNodeParents(ctx, nodeID)
		require.NoError(t, err)
		assert.Equal(t, wantParents, gotParents, "parents of %s", nodeID)

		wantAttrs, err := src.GetNodeAttributeHistory(ctx, nodeID)
		require.NoError(t, err)
		gotAttrs, err := dst.GetNodeAttributeHistory(ctx, nodeID)
		require.NoError(t, err)
		assert.Equal(t, len(wantAttrs), len(gotAttrs), "attribute history of %s", nodeID)
	}

	wantHistory, err := src.GetTransformHistory(ctx, tf)
	require.NoError(t, err)
	gotHistory, err := dst.GetTransformHistory(ctx, tf)
	require.NoError(t, err)
	assert.Equal(t, wantHistory, gotHistory)

	sources, err := dst.GetConnectionSourceIDs(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{a}, sources)
}
