package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaykit/relay/facade"
	"github.com/relaykit/relay/pathalg"
	"github.com/relaykit/relay/reducer"
	relaystate "github.com/relaykit/relay/state"
	"github.com/relaykit/relay/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTaskFile(t *testing.T, root, id, title string) {
	t.Helper()
	dir := pathalg.TasksPath(root)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "---\nid: " + id + "\ntitle: " + title + "\n---\n\nDescribe the task.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".md"), []byte(content), 0o644))
}

func TestPulseArchitectNoTasksScaffolds(t *testing.T) {
	root := t.TempDir()
	code := Pulse(Config{Root: root, Role: relaystate.RoleArchitect})
	assert.Equal(t, 0, code)

	_, err := os.Stat(filepath.Join(pathalg.TasksPath(root), "001-setup.md"))
	require.NoError(t, err)
}

func TestPulseArchitectPromptsToStartTask(t *testing.T) {
	root := t.TempDir()
	writeTaskFile(t, root, "t1", "Fix the bug")

	code := Pulse(Config{Root: root, Role: relaystate.RoleArchitect})
	assert.Equal(t, 0, code)

	s := store.New(root)
	cur, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusIdle, cur.Status)
	assert.Nil(t, cur.ActiveTaskID)
}

func TestPulseArchitectSubmitApproveCompletesTask(t *testing.T) {
	root := t.TempDir()
	writeTaskFile(t, root, "t1", "Fix the bug")

	s := store.New(root)
	require.NoError(t, s.Init())
	_, err := facade.StartTask(s, "t1", "Fix the bug", time.Now())
	require.NoError(t, err)

	approve := "# DIRECTIVE\n\n## EXECUTE\n\nLooks good.\n\n# VERDICT\nAPPROVE\n"
	code := Pulse(Config{
		Root:   root,
		Role:   relaystate.RoleArchitect,
		Submit: &reducer.SubmitIntent{TaskID: "t1", Content: approve},
	})
	assert.Equal(t, 0, code)

	cur, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusCompleted, cur.Status)
}

// TestPulseEngineerUnblocksOnDirectiveArrival exercises the core
// ReadState contract (spec.md §4.8): a pulse with no directive yet
// releases the lock and waits; once a directive is submitted through a
// concurrent transaction, the waiting pulse observes it and proceeds to
// prompt instead of hanging.
func TestPulseEngineerUnblocksOnDirectiveArrival(t *testing.T) {
	root := t.TempDir()
	s := store.New(root)
	require.NoError(t, s.Init())
	_, err := facade.StartTask(s, "t1", "Fix the bug", time.Now())
	require.NoError(t, err)

	resultCh := make(chan int, 1)
	go func() {
		resultCh <- Pulse(Config{
			Root:         root,
			Role:         relaystate.RoleEngineer,
			PollInterval: 10 * time.Millisecond,
			MaxWaits:     50,
		})
	}()

	time.Sleep(50 * time.Millisecond)
	reject := "# DIRECTIVE\n\n## EXECUTE\n\nGo ahead.\n\n# VERDICT\nREJECT\n"
	_, err = facade.SubmitDirective(store.New(root), "t1", reject, time.Now())
	require.NoError(t, err)

	select {
	case code := <-resultCh:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("pulse never unblocked after directive arrived")
	}
}
