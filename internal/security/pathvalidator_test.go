package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) (*PathValidator, string) {
	t.Helper()
	dir := t.TempDir()
	pv, err := New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { pv.Close() })
	return pv, dir
}

func TestNormalize(t *testing.T) {
	pv, _ := newValidator(t)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"simple file", "export.json", "export.json", nil},
		{"nested", "exports/2026/keys.json", "exports/2026/keys.json", nil},
		{"dot segments", "exports/./keys.json", "exports/keys.json", nil},
		{"inner parent", "exports/../keys.json", "keys.json", nil},
		{"empty", "", "", ErrEmptyPath},
		{"escape", "../keys.json", "", ErrPathEscapes},
		{"deep escape", "exports/../../keys.json", "", ErrPathEscapes},
		{"absolute", "/etc/passwd", "", ErrAbsolutePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pv.Normalize(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteAndReadFile(t *testing.T) {
	pv, dir := newValidator(t)

	require.NoError(t, pv.WriteFile("exports/keys.json", []byte("data"), 0600))

	raw, err := os.ReadFile(filepath.Join(dir, "exports", "keys.json"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), raw)

	got, err := pv.ReadFile("exports/keys.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestWriteFileRejectsEscape(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "wallet")
	require.NoError(t, os.Mkdir(dir, 0700))

	pv, err := New(dir)
	require.NoError(t, err)
	defer pv.Close()

	err = pv.WriteFile("../outside.json", []byte("x"), 0600)
	assert.ErrorIs(t, err, ErrPathEscapes)

	_, statErr := os.Stat(filepath.Join(parent, "outside.json"))
	assert.True(t, os.IsNotExist(statErr), "file was created outside the wallet directory")
}

func TestReadFileRejectsEscape(t *testing.T) {
	pv, _ := newValidator(t)
	_, err := pv.ReadFile("../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathEscapes)
}

func TestReadFileSymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "wallet")
	require.NoError(t, os.Mkdir(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret"), []byte("s"), 0600))
	if err := os.Symlink(filepath.Join(parent, "secret"), filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	pv, err := New(dir)
	require.NoError(t, err)
	defer pv.Close()

	_, err = pv.ReadFile("link")
	assert.Error(t, err)
}
