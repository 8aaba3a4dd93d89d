package scene

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/types"
)

func TestTransformHistory(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	tf, err := s.AddTransformNode(ctx, id.Root, nil, types.Translation(0, 0, 0), types.FromMillis(100))
	require.NoError(t, err)

	// Versions are written out of order on purpose.
	require.NoError(t, s.SetTransform(ctx, tf, types.Translation(3, 0, 0), types.FromMillis(300)))
	require.NoError(t, s.SetTransform(ctx, tf, types.Translation(2, 0, 0), types.FromMillis(200)))

	history, err := s.GetTransformHistory(ctx, tf)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].Stamp.Before(history[i].Stamp))
	}

	tests := []struct {
		name  string
		stamp types.TimeStamp
		wantX float64
	}{
		{name: "latest", stamp: types.TimeStamp{}, wantX: 3},
		{name: "exact", stamp: types.FromMillis(200), wantX: 2},
		{name: "between", stamp: types.FromMillis(250), wantX: 2},
		{name: "after all", stamp: types.FromMillis(1000), wantX: 3},
		{name: "before all", stamp: types.FromMillis(50), wantX: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := s.GetTransform(ctx, tf, tt.stamp)
			require.NoError(t, err)
			x, _, _ := m.TranslationPart()
			assert.Equal(t, tt.wantX, x)
		})
	}
}

func TestTransformHistory_SetCountMatchesVersions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	tf, err := s.AddTransformNode(ctx, id.Root, nil, types.Identity(), types.FromMillis(1))
	require.NoError(t, err)

	const k = 25
	for i := 0; i < k; i++ {
		require.NoError(t, s.SetTransform(ctx, tf, types.Translation(float64(i), 0, 0), types.FromMillis(float64(10+i))))
	}

	history, err := s.GetTransformHistory(ctx, tf)
	require.NoError(t, err)
	assert.Len(t, history, k+1)

	latest, err := s.GetTransform(ctx, tf, types.TimeStamp{})
	require.NoError(t, err)
	assert.Equal(t, types.Translation(k-1, 0, 0), latest)
}

func TestTransformForNode(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	const tol = 1e-9

	base, err := s.AddTransformNode(ctx, id.Root, nil, types.Translation(1, 0, 0), types.FromMillis(1))
	require.NoError(t, err)
	arm, err := s.AddTransformNode(ctx, base, nil, types.RotationZ(math.Pi/2), types.FromMillis(1))
	require.NoError(t, err)
	gripper, err := s.AddTransformNode(ctx, arm, nil, types.Translation(0, 2, 0), types.FromMillis(1))
	require.NoError(t, err)
	grouped, err := s.AddGroup(ctx, gripper, nil)
	require.NoError(t, err)

	t.Run("pose in root frame", func(t *testing.T) {
		m, err := s.GetTransformForNode(ctx, gripper, id.Nil, types.TimeStamp{})
		require.NoError(t, err)
		x, y, z := m.TranslationPart()
		assert.InDelta(t, -1.0, x, tol)
		assert.InDelta(t, 0.0, y, tol)
		assert.InDelta(t, 0.0, z, tol)
	})

	t.Run("groups contribute identity", func(t *testing.T) {
		a, err := s.GetTransformForNode(ctx, grouped, id.Root, types.TimeStamp{})
		require.NoError(t, err)
		b, err := s.GetTransformForNode(ctx, gripper, id.Root, types.TimeStamp{})
		require.NoError(t, err)
		assert.True(t, a.ApproxEqual(b, tol))
	})

	t.Run("relative to an ancestor", func(t *testing.T) {
		m, err := s.GetTransformForNode(ctx, gripper, arm, types.TimeStamp{})
		require.NoError(t, err)
		assert.True(t, m.ApproxEqual(types.Translation(0, 2, 0), tol))
	})

	t.Run("inverse direction", func(t *testing.T) {
		forward, err := s.GetTransformForNode(ctx, gripper, base, types.TimeStamp{})
		require.NoError(t, err)
		backward, err := s.GetTransformForNode(ctx, base, gripper, types.TimeStamp{})
		require.NoError(t, err)
		assert.True(t, forward.Mul(backward).ApproxEqual(types.Identity(), tol))
	})

	t.Run("history is honored", func(t *testing.T) {
		require.NoError(t, s.SetTransform(ctx, base, types.Translation(5, 0, 0), types.FromMillis(10)))

		old, err := s.GetTransformForNode(ctx, base, id.Root, types.FromMillis(5))
		require.NoError(t, err)
		x, _, _ := old.TranslationPart()
		assert.Equal(t, 1.0, x)

		latest, err := s.GetTransformForNode(ctx, base, id.Root, types.TimeStamp{})
		require.NoError(t, err)
		x, _, _ = latest.TranslationPart()
		assert.Equal(t, 5.0, x)
	})

	t.Run("disconnected nodes", func(t *testing.T) {
		orphan, err := s.AddTransformNode(ctx, id.Root, nil, types.Identity(), types.FromMillis(1))
		require.NoError(t, err)
		require.NoError(t, s.RemoveParent(ctx, orphan, id.Root))

		_, err = s.GetTransformForNode(ctx, orphan, id.Root, types.TimeStamp{})
		assert.ErrorIs(t, err, rsgerr.ErrNotFound)
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := s.GetTransformForNode(ctx, id.NewGenerator().New(), id.Root, types.TimeStamp{})
		assert.ErrorIs(t, err, rsgerr.ErrNotFound)
	})
}

func TestUncertainTransform(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	plain, err := s.AddTransformNode(ctx, id.Root, nil, types.Identity(), types.FromMillis(1))
	require.NoError(t, err)
	_, err = s.GetUncertainty(ctx, plain, types.TimeStamp{})
	assert.ErrorIs(t, err, rsgerr.ErrNotFound)

	u1 := types.DiagonalUncertainty(1, 1, 1, 1, 1, 1)
	u2 := types.DiagonalUncertainty(2, 2, 2, 2, 2, 2)
	tf, err := s.AddUncertainTransformNode(ctx, id.Root, nil, types.Identity(), u1, types.FromMillis(1))
	require.NoError(t, err)
	require.NoError(t, s.SetUncertainTransform(ctx, tf, types.Translation(1, 0, 0), u2, types.FromMillis(2)))
	require.NoError(t, s.SetTransform(ctx, tf, types.Translation(2, 0, 0), types.FromMillis(3)))

	got, err := s.GetUncertainty(ctx, tf, types.TimeStamp{})
	require.NoError(t, err)
	assert.Equal(t, u2, got)

	got, err = s.GetUncertainty(ctx, tf, types.FromMillis(1))
	require.NoError(t, err)
	assert.Equal(t, u1, got)

	group, err := s.AddGroup(ctx, id.Root, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SetTransform(ctx, group, types.Identity(), types.Now()), rsgerr.ErrTypeMismatch)
	assert.ErrorIs(t, s.SetUncertainTransform(ctx, group, types.Identity(), u1, types.Now()), rsgerr.ErrTypeMismatch)
	assert.ErrorIs(t, s.SetTransform(ctx, id.NewGenerator().New(), types.Identity(), types.Now()), rsgerr.ErrNotFound)
}
