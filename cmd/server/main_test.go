package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/dialog-session/internal/backend"
)

func TestOpenStore(t *testing.T) {
	mem, err := openStore("")
	require.NoError(t, err)
	assert.IsType(t, &backend.MemoryStore{}, mem)

	db, err := openStore(filepath.Join(t.TempDir(), "dialogs.db"))
	require.NoError(t, err)
	defer db.Close()
	assert.IsType(t, &backend.SQLiteStore{}, db)
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"listen", "database", "log-level", "config"} {
		assert.NotNil(t, cmd.Flag(name), name)
	}
}
