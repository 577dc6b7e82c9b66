package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliengineer/cliengineer/internal/events"
)

func TestManager_CreateArtifactWritesFileAndEmitsEvent(t *testing.T) {
	dir := t.TempDir()
	bus := events.New(10)
	ch := bus.Subscribe()

	m, err := New(dir, bus)
	require.NoError(t, err)

	art, err := m.CreateArtifact("hello", TypeSourceCode, "package main\n", map[string]string{"language": "go"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "hello.go"), art.Path)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))

	e := <-ch
	assert.Equal(t, events.KindArtifactCreated, e.Kind)
	assert.Equal(t, "hello", e.ArtifactName)
}

// TestManager_ManifestDurability checks that re-reading the manifest
// after a create yields a superset including the new artifact, with a
// path matching what's on disk.
func TestManager_ManifestDurability(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, nil)
	require.NoError(t, err)

	_, err = m.CreateArtifact("readme", TypeDocumentation, "# hello\n", nil)
	require.NoError(t, err)

	manifestPath := filepath.Join(dir, "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	var records []manifestRecord
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "readme", records[0].Name)
	assert.Equal(t, TypeDocumentation, records[0].Type)

	resolved, err := filepath.Abs(filepath.Join(dir, records[0].Path))
	require.NoError(t, err)
	abs, err := filepath.Abs(filepath.Join(dir, "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, abs, resolved)

	_, err = m.CreateArtifact("second", TypeDocumentation, "# second\n", nil)
	require.NoError(t, err)

	raw, err = os.ReadFile(manifestPath)
	require.NoError(t, err)
	var after []manifestRecord
	require.NoError(t, json.Unmarshal(raw, &after))
	require.Len(t, after, 2)
	assert.Equal(t, "readme", after[0].Name)
	assert.Equal(t, "second", after[1].Name)
}

func TestManager_CleanupRemovesUnreferencedFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, nil)
	require.NoError(t, err)

	_, err = m.CreateArtifact("kept", TypeDocumentation, "keep me", nil)
	require.NoError(t, err)

	stray := filepath.Join(dir, "stray.txt")
	require.NoError(t, os.WriteFile(stray, []byte("stray"), 0o644))

	require.NoError(t, m.Cleanup())

	_, err = os.Stat(stray)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "kept.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "manifest.json"))
	assert.NoError(t, err)
}

func TestExtractArtifacts_ToleratesMalformedBlockAlongsideValidOne(t *testing.T) {
	text := `Here is the file:
<artifact name="main.go" type="SourceCode">
package main
</artifact>

And a broken one with no closing tag:
<artifact name="broken.go" type="SourceCode">
package broken
`

	out := ExtractArtifacts(text)
	require.Len(t, out, 1)
	assert.Equal(t, "main.go", out[0].Name)
	assert.Equal(t, "SourceCode", out[0].Type)
	assert.Contains(t, out[0].Content, "package main")
}

func TestExtractArtifacts_RejectsNestedArtifactBlock(t *testing.T) {
	text := `<artifact name="outer.txt" type="Other">
outer content
<artifact name="inner.txt" type="Other">
inner
</artifact>
</artifact>`

	out := ExtractArtifacts(text)
	assert.Empty(t, out)
}

func TestExtractArtifacts_SkipsTagMissingNameAttribute(t *testing.T) {
	text := `<artifact type="SourceCode">
no name here
</artifact>
<artifact name="valid.txt" type="Other">
fine
</artifact>`

	out := ExtractArtifacts(text)
	require.Len(t, out, 1)
	assert.Equal(t, "valid.txt", out[0].Name)
}

func TestExtractArtifacts_NoBlocksReturnsEmpty(t *testing.T) {
	out := ExtractArtifacts("just prose, no artifact tags at all")
	assert.Empty(t, out)
}
