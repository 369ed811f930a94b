package pathalg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTaskID(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "task-1", false},
		{"underscore", "task_1", false},
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"separator", "a/b", true},
		{"too long", strings.Repeat("a", MaxTaskIDLen+1), true},
		{"exactly max len", strings.Repeat("a", MaxTaskIDLen), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateTaskID(c.id)
			if c.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTaskID)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", Slugify("Hello, World!"))
	assert.Equal(t, "a-b-c", Slugify("  A --- B_C  "))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestExchangeFilename(t *testing.T) {
	name := ExchangeFilename("t1", "Fix the bug", 3, "architect")
	assert.Equal(t, "t1-003-architect-fix-the-bug.md", name)
}

func TestExchangeFilenameTruncatesLongSlug(t *testing.T) {
	longTitle := strings.Repeat("word ", 100)
	name := ExchangeFilename("t1", longTitle, 1, "engineer")
	assert.LessOrEqual(t, len(name), 255)
	assert.True(t, strings.HasPrefix(name, "t1-001-engineer-"))
	assert.True(t, strings.HasSuffix(name, ".md"))
}

func TestExchangePathJoinsRoot(t *testing.T) {
	path, err := ExchangePath("/workspace", "t1", "Title", 1, "architect")
	require.NoError(t, err)
	assert.Equal(t, "/workspace/.relay/exchanges/t1-001-architect-title.md", path)
}

func TestPathHelpers(t *testing.T) {
	root := "/workspace"
	assert.Equal(t, "/workspace/.relay/state.json", StatePath(root))
	assert.Equal(t, "/workspace/.relay/exchanges", ExchangesPath(root))
	assert.Equal(t, "/workspace/.relay/exchanges/tasks.jsonl", TaskLogPath(root))
	assert.Equal(t, "/workspace/.relay", RelayRoot(root))
	assert.Equal(t, "/workspace/.relay/tasks", TasksPath(root))
	assert.Equal(t, "/workspace/.relay/drafts/t1-002-engineer.md", DraftPath(root, "t1", 2, "engineer"))
}
