package scene

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/types"
	"github.com/zero-day-ai/rsg/update"
)

func TestStore_ConcurrentWritersAndReaders(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t)

	group, err := s.AddGroup(ctx, id.Root, nil)
	require.NoError(t, err)

	const writers, perWriter = 8, 50
	var readsDone atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				name := fmt.Sprintf("w%d-%d", w, i)
				if _, err := s.AddNode(gctx, group, types.Attrs("name", name)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				children, err := s.GetGroupChildren(gctx, group)
				if err != nil {
					return err
				}
				for _, child := range children {
					if _, err := s.GetNodeAttributes(gctx, child); err != nil {
						return err
					}
				}
				readsDone.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	children, err := s.GetGroupChildren(ctx, group)
	require.NoError(t, err)
	assert.Len(t, children, writers*perWriter)
	assert.Equal(t, int64(4*perWriter), readsDone.Load())

	// Delivery order equals commit order, which equals child link order.
	var added []id.ID
	for _, m := range rec.Mutations() {
		if m.Op == update.OpAddNode {
			added = append(added, m.ID)
		}
	}
	assert.Equal(t, children, added)
}

func TestStore_IdenticalReadsAreStable(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for i := 0; i < 20; i++ {
		_, err := s.AddNode(ctx, id.Root, types.Attrs("kind", "box"))
		require.NoError(t, err)
	}

	first := s.GetNodes(ctx, types.Attrs("kind", "box"))
	second := s.GetNodes(ctx, types.Attrs("kind", "box"))
	assert.Equal(t, first, second)
}
