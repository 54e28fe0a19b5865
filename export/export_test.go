package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExporter(t *testing.T) *Exporter {
	return New(t.TempDir(), zerolog.Nop())
}

func TestSaveCSV_AppendsExtension(t *testing.T) {
	exp := newTestExporter(t)

	path, err := exp.SaveCSV("sales-march", "id,qty\n1,5\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(exp.Dir(), "sales-march.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,qty\n1,5\n", string(data))
}

func TestSaveCSV_KeepsExistingExtensionAnyCase(t *testing.T) {
	exp := newTestExporter(t)

	path, err := exp.SaveCSV("Report.CSV", "x")
	require.NoError(t, err)
	assert.Equal(t, "Report.CSV", filepath.Base(path))
}

func TestSaveCSV_OverwritesExistingFile(t *testing.T) {
	exp := newTestExporter(t)

	_, err := exp.SaveCSV("stock", "old")
	require.NoError(t, err)
	path, err := exp.SaveCSV("stock", "new")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestSaveCSV_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	exp := New(dir, zerolog.Nop())

	path, err := exp.SaveCSV("credits", "a,b")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestSaveCSV_RejectsUnsafeNames(t *testing.T) {
	exp := newTestExporter(t)

	for _, name := range []string{"", "   ", "..", "../escape", `dir\file`, "a/b"} {
		_, err := exp.SaveCSV(name, "x")
		assert.ErrorIs(t, err, ErrInvalidFilename, "name %q", name)
	}
}

func TestSaveCSV_IOErrorSurfaces(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file, zerolog.Nop()).SaveCSV("report", "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidFilename)
}
