package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relaykit/relay/lock"
	"github.com/relaykit/relay/metrics"
	"github.com/relaykit/relay/pathalg"
	relaystate "github.com/relaykit/relay/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	require.NoError(t, s.Init())
	return s
}

func TestInitCreatesLayoutAndDefaultState(t *testing.T) {
	s := newTestStore(t)
	for _, dir := range []string{
		pathalg.ExchangesPath(s.Root),
		filepath.Join(pathalg.RelayRoot(s.Root), pathalg.DraftsDir),
		pathalg.TasksPath(s.Root),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	cur, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, relaystate.Default(), cur)
}

func TestInitIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	taskID := "t1"
	_, err := s.Update(func(cur relaystate.RelayState) (relaystate.RelayState, error) {
		cur.ActiveTaskID = &taskID
		cur.Status = relaystate.StatusPlanning
		return cur, nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Init())
	cur, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusPlanning, cur.Status)
}

func TestUpdatePersistsReducerResult(t *testing.T) {
	s := newTestStore(t)
	next, err := s.Update(func(cur relaystate.RelayState) (relaystate.RelayState, error) {
		cur.Status = relaystate.StatusPlanning
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusPlanning, next.Status)

	cur, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusPlanning, cur.Status)
}

func TestUpdateReducerErrorLeavesStateUntouched(t *testing.T) {
	s := newTestStore(t)
	before, err := s.Read()
	require.NoError(t, err)

	_, err = s.Update(func(cur relaystate.RelayState) (relaystate.RelayState, error) {
		return relaystate.RelayState{}, assert.AnError
	})
	require.Error(t, err)

	after, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateWithSideEffectFailureLeavesStateUntouched(t *testing.T) {
	s := newTestStore(t)
	before, err := s.Read()
	require.NoError(t, err)

	_, err = s.UpdateWithSideEffect(
		func(cur relaystate.RelayState) (relaystate.RelayState, error) {
			cur.Status = relaystate.StatusPlanning
			return cur, nil
		},
		func(relaystate.RelayState) error { return assert.AnError },
	)
	require.Error(t, err)

	after, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateWithExchangeOrdersArtifactBeforeState(t *testing.T) {
	s := newTestStore(t)
	var artifactPath string
	next, err := s.UpdateWithExchange(
		func(cur relaystate.RelayState) (relaystate.RelayState, error) {
			cur.Status = relaystate.StatusWaitingForEngineer
			return cur, nil
		},
		func(relaystate.RelayState) (string, error) {
			path := filepath.Join(pathalg.ExchangesPath(s.Root), "artifact.md")
			artifactPath = path
			return path, os.WriteFile(path, []byte("content"), 0o644)
		},
	)
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusWaitingForEngineer, next.Status)
	_, err = os.Stat(artifactPath)
	require.NoError(t, err)
}

func TestReconcileOrphansRemovesStaleArtifacts(t *testing.T) {
	s := newTestStore(t)
	taskID := "t1"
	_, err := s.Update(func(cur relaystate.RelayState) (relaystate.RelayState, error) {
		cur.ActiveTaskID = &taskID
		cur.Iteration = 1
		return cur, nil
	})
	require.NoError(t, err)

	dir := pathalg.ExchangesPath(s.Root)
	stale := filepath.Join(dir, "other-task-001-architect-x.md")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	aheadIter := filepath.Join(dir, "t1-005-architect-x.md")
	require.NoError(t, os.WriteFile(aheadIter, []byte("x"), 0o644))
	current := filepath.Join(dir, "t1-001-architect-x.md")
	require.NoError(t, os.WriteFile(current, []byte("x"), 0o644))

	require.NoError(t, s.ReconcileOrphans())

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(aheadIter)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(current)
	assert.NoError(t, err)
}

func TestUpdateWithSideEffectDoesNotReconcileOrphans(t *testing.T) {
	s := newTestStore(t)
	taskID := "t1"
	_, err := s.Update(func(cur relaystate.RelayState) (relaystate.RelayState, error) {
		cur.ActiveTaskID = &taskID
		cur.Iteration = 1
		return cur, nil
	})
	require.NoError(t, err)

	stale := filepath.Join(pathalg.ExchangesPath(s.Root), "other-task-001-architect-x.md")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	_, err = s.UpdateWithSideEffect(
		func(cur relaystate.RelayState) (relaystate.RelayState, error) { return cur, nil },
		func(relaystate.RelayState) error { return nil },
	)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.NoError(t, err, "UpdateWithSideEffect must not reconcile orphans; only UpdateWithExchange does")
}

func TestUpdateWithExchangeReconcilesOrphansBeforeWriting(t *testing.T) {
	s := newTestStore(t)
	taskID := "t1"
	_, err := s.Update(func(cur relaystate.RelayState) (relaystate.RelayState, error) {
		cur.ActiveTaskID = &taskID
		cur.Iteration = 1
		return cur, nil
	})
	require.NoError(t, err)

	stale := filepath.Join(pathalg.ExchangesPath(s.Root), "other-task-001-architect-x.md")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	_, err = s.UpdateWithExchange(
		func(cur relaystate.RelayState) (relaystate.RelayState, error) { return cur, nil },
		func(relaystate.RelayState) (string, error) {
			path := filepath.Join(pathalg.ExchangesPath(s.Root), "t1-002-architect-x.md")
			return path, os.WriteFile(path, []byte("x"), 0o644)
		},
	)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestAppendTaskLogAppendsJSONLine(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendTaskLog(relaystate.TaskLogEntry{TaskID: "t1", Title: "Title", StartedAt: 1}))
	require.NoError(t, s.AppendTaskLog(relaystate.TaskLogEntry{TaskID: "t2", Title: "Title 2", StartedAt: 2}))

	data, err := os.ReadFile(pathalg.TaskLogPath(s.Root))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"taskId":"t1"`)
	assert.Contains(t, string(data), `"taskId":"t2"`)
}

func TestAcquireLockReclaimIncrementsStaleReclaimedMetric(t *testing.T) {
	s := newTestStore(t)
	s.Metrics = metrics.New()

	dir := filepath.Join(pathalg.RelayRoot(s.Root), "state.json.lock")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dir, old, old))
	s.LockOptions = lock.Options{StaleAfter: 10 * time.Millisecond}

	l, err := s.acquireLock()
	require.NoError(t, err)
	defer l.Release()

	assert.Equal(t, float64(1), testutil.ToFloat64(s.Metrics.LockStaleReclaimed))
}

func TestReadMissingStateFileReturnsDefault(t *testing.T) {
	s := New(t.TempDir())
	cur, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, relaystate.Default(), cur)
}
