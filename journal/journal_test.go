package journal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/rsg/codec/jsoncodec"
	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/port"
	"github.com/zero-day-ai/rsg/rsgerr"
	"github.com/zero-day-ai/rsg/scene"
	"github.com/zero-day-ai/rsg/types"
	"github.com/zero-day-ai/rsg/update"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openInMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{InMemory: true, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

// populate builds a small scene whose updates are journaled by j.
func populate(t *testing.T, j *Journal) (*scene.Store, []id.ID) {
	t.Helper()
	ctx := context.Background()

	store := scene.New(scene.WithLogger(quietLogger()))
	store.Dispatcher().Register(jsoncodec.NewEncoder(j, jsoncodec.WithLogger(quietLogger())), update.WithName("journal"))

	room, err := store.AddGroup(ctx, id.Root, types.Attrs("name", "room"))
	require.NoError(t, err)
	tf, err := store.AddTransformNode(ctx, room, nil, types.Translation(1, 1, 0), types.FromMillis(10))
	require.NoError(t, err)
	require.NoError(t, store.SetTransform(ctx, tf, types.Translation(2, 1, 0), types.FromMillis(20)))
	box, err := store.AddGeometricNode(ctx, tf, types.Attrs("name", "box"), types.NewBox(1, 1, 1), types.FromMillis(10))
	require.NoError(t, err)
	return store, []id.ID{room, tf, box}
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{InMemory: true}).Validate())
	assert.NoError(t, (&Config{Path: "/tmp/x"}).Validate())

	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestJournal_AppendAndEntries(t *testing.T) {
	ctx := context.Background()
	j := openInMemory(t)

	seq, err := j.Append(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	status, written := j.Write([]byte(`{"a":2}`))
	assert.Equal(t, port.StatusOK, status)
	assert.Equal(t, 7, written)
	assert.Equal(t, uint64(2), j.Len())

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)}, entries)
}

func TestJournal_Replay(t *testing.T) {
	ctx := context.Background()
	j := openInMemory(t)
	primary, ids := populate(t, j)
	assert.Equal(t, uint64(4), j.Len())

	replica := scene.New(scene.WithLogger(quietLogger()))
	n, err := j.Replay(ctx, replica)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, primary.GetNodes(ctx, nil), replica.GetNodes(ctx, nil))
	history, err := replica.GetTransformHistory(ctx, ids[1])
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// A second replay into the same store collides on the forced IDs.
	_, err = j.Replay(ctx, replica)
	assert.ErrorIs(t, err, rsgerr.ErrIDAlreadyExists)
}

func TestJournal_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	j, err := Open(Config{Path: dir, SyncWrites: true, Logger: quietLogger()})
	require.NoError(t, err)
	primary, _ := populate(t, j)
	require.NoError(t, j.Close())

	_, err = j.Append(ctx, []byte("{}"))
	assert.ErrorIs(t, err, ErrClosed)
	status, _ := j.Write([]byte("{}"))
	assert.Equal(t, port.StatusFailed, status)

	reopened, err := Open(Config{Path: dir, Logger: quietLogger()})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(4), reopened.Len())

	replica := scene.New(scene.WithLogger(quietLogger()))
	_, err = reopened.Replay(ctx, replica)
	require.NoError(t, err)
	assert.Equal(t, primary.GetNodes(ctx, nil), replica.GetNodes(ctx, nil))

	seq, err := reopened.Append(ctx, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)
}

func TestJournal_Corruption(t *testing.T) {
	ctx := context.Background()
	j := openInMemory(t)

	_, err := j.Append(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)
	require.NoError(t, j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(j.key(2), []byte{0, 0, 0, 0, 'x'})
	}))

	_, err = j.Entries(ctx)
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestJournal_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	j := openInMemory(t)
	other := &Journal{db: j.db, prefix: "other/", logger: quietLogger()}

	_, err := j.Append(ctx, []byte("1"))
	require.NoError(t, err)
	_, err = other.Append(ctx, []byte("2"))
	require.NoError(t, err)

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1")}, entries)
}
