// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeKeyFile(t, "sk-one\n\n# team key, do not rotate\n  sk-two  \n")
	keys, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-one", "sk-two"}, keys)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeKeyFile(t, "\n# only a comment\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "no credentials")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
