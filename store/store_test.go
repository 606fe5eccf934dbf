package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskSnapshot_TruncatesResultAndError(t *testing.T) {
	longResult := make([]byte, maxStoredResult+50)
	longErr := make([]byte, maxStoredError+50)
	for i := range longResult {
		longResult[i] = 'r'
	}
	for i := range longErr {
		longErr[i] = 'e'
	}

	snap := NewTaskSnapshot("t", "failed", string(longResult), string(longErr), "user")
	assert.Len(t, snap.Result, maxStoredResult)
	assert.Len(t, snap.Error, maxStoredError)
}

func TestFileStore_SaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	snap := Snapshot{
		BeatCount:      42,
		StartTime:      time.Now().Truncate(time.Second),
		EvolutionCount: 3,
		ImprovementIdx: 1,
		Tasks: map[string]TaskSnapshot{
			"abc123": NewTaskSnapshot("do a thing", "completed", "it worked", "", "user"),
		},
	}
	require.NoError(t, fs.Save(snap))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.BeatCount, loaded.BeatCount)
	assert.Equal(t, snap.EvolutionCount, loaded.EvolutionCount)
	require.Contains(t, loaded.Tasks, "abc123")
	assert.Equal(t, "do a thing", loaded.Tasks["abc123"].Title)
}

func TestFileStore_Load_MissingFileReturnsEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(0), loaded.BeatCount)
	assert.NotNil(t, loaded.Tasks)
	assert.Empty(t, loaded.Tasks)
}

func TestFileStore_Save_WritesAtomically(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.Save(Snapshot{BeatCount: 1, Tasks: map[string]TaskSnapshot{}}))

	// the temp file used for the atomic rename must never survive a save
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRedisMirror_SaveThenLoad_RoundTrips(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	mirror, err := NewRedisMirror(ctx, "redis://"+mr.Addr(), "cradle:state:test")
	require.NoError(t, err)
	defer mirror.Close()

	snap := Snapshot{BeatCount: 7, Tasks: map[string]TaskSnapshot{
		"t1": NewTaskSnapshot("task one", "pending", "", "", "heartbeat"),
	}}
	require.NoError(t, mirror.Save(ctx, snap))

	loaded, found, err := mirror.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), loaded.BeatCount)
}

func TestRedisMirror_Load_NoDataFound(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	mirror, err := NewRedisMirror(ctx, "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer mirror.Close()

	_, found, err := mirror.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestState_Save_MirrorFailureDoesNotFailSave(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	mirror, err := NewRedisMirror(context.Background(), "redis://"+mr.Addr(), "cradle:state")
	require.NoError(t, err)
	mr.Close() // mirror is now unreachable, but the file write must still succeed

	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	state := NewState(fs, mirror, nil)
	err = state.Save(context.Background(), Snapshot{BeatCount: 1, Tasks: map[string]TaskSnapshot{}})
	assert.NoError(t, err)
}

func TestBootstrapSentinel_MarkThenCheck(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsBootstrapped(dir))
	require.NoError(t, MarkBootstrapped(dir))
	assert.True(t, IsBootstrapped(dir))
}
