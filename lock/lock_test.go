package lock

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	l, err := Acquire(dir, time.Second)
	require.NoError(t, err)
	_, err = os.Stat(dir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "owner.json"))
	require.NoError(t, err)

	l.Release()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	l, err := Acquire(dir, time.Second)
	require.NoError(t, err)
	l.Release()
	assert.NotPanics(t, l.Release)
}

func TestAcquireTimesOutWhenHeld(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	l, err := Acquire(dir, time.Second)
	require.NoError(t, err)
	defer l.Release()

	_, err = AcquireWithOptions(dir, 100*time.Millisecond, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestStaleLockIsReclaimed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dir, old, old))

	l, err := AcquireWithOptions(dir, time.Second, Options{StaleAfter: 10 * time.Millisecond})
	require.NoError(t, err)
	defer l.Release()
}

func TestStaleLockReclaimInvokesOnStaleReclaimHook(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dir, old, old))

	calls := 0
	l, err := AcquireWithOptions(dir, time.Second, Options{
		StaleAfter:     10 * time.Millisecond,
		OnStaleReclaim: func() { calls++ },
	})
	require.NoError(t, err)
	defer l.Release()
	assert.Equal(t, 1, calls)
}

func TestFreshAcquireDoesNotInvokeOnStaleReclaimHook(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	calls := 0
	l, err := AcquireWithOptions(dir, time.Second, Options{OnStaleReclaim: func() { calls++ }})
	require.NoError(t, err)
	defer l.Release()
	assert.Equal(t, 0, calls)
}

func TestFatalErrMatchesFilesystemErrnos(t *testing.T) {
	assert.True(t, fatalErr(os.ErrPermission))
	assert.True(t, fatalErr(syscall.EROFS))
	assert.True(t, fatalErr(syscall.ENOTDIR))
	assert.True(t, fatalErr(syscall.ENAMETOOLONG))
	assert.False(t, fatalErr(os.ErrNotExist))
	assert.False(t, fatalErr(os.ErrExist))
}

func TestAcquireFailsFastOnNotADirectory(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// blocker is a regular file; asking to create a lock dir beneath it
	// hits ENOTDIR, which must abort immediately rather than retry
	// until the caller's timeout elapses.
	dir := filepath.Join(blocker, "state.json.lock")
	start := time.Now()
	_, err := AcquireWithOptions(dir, 2*time.Second, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Less(t, time.Since(start), 1*time.Second)
}

func TestFreshLockIsNotReclaimed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	l, err := AcquireWithOptions(dir, time.Second, Options{StaleAfter: time.Hour})
	require.NoError(t, err)
	defer l.Release()

	_, err = AcquireWithOptions(dir, 50*time.Millisecond, Options{StaleAfter: time.Hour})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRefreshLoopKeepsLockFresh(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state.json.lock")
	l, err := AcquireWithOptions(dir, time.Second, Options{RefreshEvery: 10 * time.Millisecond})
	require.NoError(t, err)
	defer l.Release()

	before, err := os.Stat(dir)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	after, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, after.ModTime().After(before.ModTime()) || after.ModTime().Equal(before.ModTime()))
}
