package update

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zero-day-ai/rsg/id"
)

func TestOrigin(t *testing.T) {
	ctx := context.Background()
	_, ok := Origin(ctx)
	assert.False(t, ok)

	remote := WithOrigin(ctx, "arm")
	replica, ok := Origin(remote)
	assert.True(t, ok)
	assert.Equal(t, "arm", replica)
}

func TestLocalOnly(t *testing.T) {
	d := NewDispatcher()
	rec := NewRecorder()
	d.Register(LocalOnly(rec.Observer()))

	local := Mutation{Op: OpAddGroup, ID: id.NewGenerator().New(), ParentID: id.Root}
	received := Mutation{Op: OpSetNodeAttributes, ID: local.ID}

	d.Dispatch(context.Background(), local)
	report := d.Dispatch(WithOrigin(context.Background(), "arm"), received)

	assert.Equal(t, []Op{OpAddGroup}, rec.Ops())
	assert.Equal(t, 1, report.Delivered, "a skipped mutation is still a delivery")
}
