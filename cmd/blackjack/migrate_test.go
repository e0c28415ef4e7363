package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCmdUpAndDown(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "blackjack.db")
	run := func(action string, yes bool) string {
		t.Helper()
		var out bytes.Buffer
		cmd := &MigrateCmd{
			Action:  action,
			Config:  filepath.Join(t.TempDir(), "missing.hcl"),
			Storage: "sqlite",
			DSN:     dsn,
			Yes:     yes,
			out:     &out,
		}
		require.NoError(t, cmd.Run())
		return out.String()
	}

	assert.Equal(t, "version 0 dirty=false\n", run("version", false))
	assert.Equal(t, "version 2 dirty=false\n", run("up", false))
	assert.Equal(t, "version 0 dirty=false\n", run("down", true))
	assert.Equal(t, "version 2 dirty=false\n", run("up", false))
}

func TestMigrateCmdDownNeedsConfirmation(t *testing.T) {
	cmd := &MigrateCmd{
		Action:  "down",
		Storage: "sqlite",
		DSN:     filepath.Join(t.TempDir(), "blackjack.db"),
	}
	err := cmd.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestMigrateCmdRejectsStoresWithoutSchema(t *testing.T) {
	for _, driver := range []string{"memory", "files"} {
		t.Run(driver, func(t *testing.T) {
			cmd := &MigrateCmd{
				Action:  "up",
				Config:  filepath.Join(t.TempDir(), "missing.hcl"),
				Storage: driver,
				DSN:     t.TempDir(),
				out:     &bytes.Buffer{},
			}
			err := cmd.Run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "has no migrations")
		})
	}
}
