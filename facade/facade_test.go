package facade

import (
	"os"
	"testing"
	"time"

	"github.com/relaykit/relay/pathalg"
	relaystate "github.com/relaykit/relay/state"
	"github.com/relaykit/relay/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(t.TempDir())
	require.NoError(t, s.Init())
	return s
}

func TestStartTaskMintsUUIDWhenIDEmpty(t *testing.T) {
	s := newTestStore(t)
	next, err := StartTask(s, "", "My Task", time.Now())
	require.NoError(t, err)
	require.NotNil(t, next.ActiveTaskID)
	assert.NotEmpty(t, *next.ActiveTaskID)
	assert.Equal(t, relaystate.StatusPlanning, next.Status)
}

func TestStartTaskUsesExplicitID(t *testing.T) {
	s := newTestStore(t)
	next, err := StartTask(s, "task-1", "My Task", time.Now())
	require.NoError(t, err)
	require.NotNil(t, next.ActiveTaskID)
	assert.Equal(t, "task-1", *next.ActiveTaskID)
}

func TestStartTaskRejectsInvalidID(t *testing.T) {
	s := newTestStore(t)
	_, err := StartTask(s, "../escape", "My Task", time.Now())
	require.Error(t, err)
}

func TestStartTaskRecordsAuditLog(t *testing.T) {
	s := newTestStore(t)
	_, err := StartTask(s, "task-1", "My Task", time.Now())
	require.NoError(t, err)

	data, err := os.ReadFile(pathalg.TaskLogPath(s.Root))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"taskId":"task-1"`)
}

func TestSubmitDirectiveWritesArtifactAndAdvancesState(t *testing.T) {
	s := newTestStore(t)
	_, err := StartTask(s, "task-1", "My Task", time.Now())
	require.NoError(t, err)

	directive := "# DIRECTIVE\n\n## EXECUTE\n\nDo it.\n\n# VERDICT\nREJECT\n"
	next, err := SubmitDirective(s, "task-1", directive, time.Now())
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusWaitingForEngineer, next.Status)
}

func TestSubmitDirectiveRejectsInvalidContent(t *testing.T) {
	s := newTestStore(t)
	_, err := StartTask(s, "task-1", "My Task", time.Now())
	require.NoError(t, err)

	_, err = SubmitDirective(s, "task-1", "not a directive", time.Now())
	require.Error(t, err)
}

func TestSubmitReportAdvancesIterationAndWaitsForArchitect(t *testing.T) {
	s := newTestStore(t)
	_, err := StartTask(s, "task-1", "My Task", time.Now())
	require.NoError(t, err)
	directive := "# DIRECTIVE\n\n## EXECUTE\n\nDo it.\n\n# VERDICT\nREJECT\n"
	_, err = SubmitDirective(s, "task-1", directive, time.Now())
	require.NoError(t, err)

	report := "# STATUS\nCOMPLETED\n\n## CHANGES\n\nEdited foo.go.\n\n## VERIFICATION\n\nRan the suite locally.\n"
	next, err := SubmitReport(s, "task-1", report, time.Now())
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusWaitingForArchitect, next.Status)
	assert.Equal(t, 2, next.Iteration)
}

func TestSubmitReportBlockedMapsToFailedStatus(t *testing.T) {
	s := newTestStore(t)
	_, err := StartTask(s, "task-1", "My Task", time.Now())
	require.NoError(t, err)
	directive := "# DIRECTIVE\n\n## EXECUTE\n\nDo it.\n\n# VERDICT\nREJECT\n"
	_, err = SubmitDirective(s, "task-1", directive, time.Now())
	require.NoError(t, err)

	report := "# STATUS\nBLOCKED\n\n## CHANGES\n\nNone.\n\n## VERIFICATION\n\nMissing credentials for this step.\n"
	next, err := SubmitReport(s, "task-1", report, time.Now())
	require.NoError(t, err)
	assert.Equal(t, relaystate.StatusWaitingForArchitect, next.Status)
}
