package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persisterState is a struct for persister round-trip testing.
type persisterState struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

func TestPersister_Save_JSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p := NewPersister[persisterState]("mystate", NewJSONCodec())

	original := persisterState{Label: "hello", Value: 42}

	err := p.Save(dir, func() *persisterState { return &original })

	require.NoError(t, err)

	var restored persisterState

	err = LoadFile(p.Path(dir), NewJSONCodec(), &restored)

	require.NoError(t, err)

	assert.Equal(t, original.Label, restored.Label)
	assert.Equal(t, original.Value, restored.Value)
}

func TestPersister_SaveInvalidDir(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState]("state", NewJSONCodec())

	err := p.Save("/nonexistent/path", func() *persisterState {
		return &persisterState{Label: "x"}
	})

	assert.Error(t, err)
}

func TestPersister_Path(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState]("20250301_143000_log.backup", NewJSONCodec())

	assert.Equal(t, filepath.Join("out", "20250301_143000_log.backup.json"), p.Path("out"))
}
