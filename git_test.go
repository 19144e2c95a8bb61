package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountChanges(t *testing.T) {
	assert.Equal(t, 0, countChanges(""))
	assert.Equal(t, 1, countChanges(" M custom_components/reolink/__init__.py"))
	assert.Equal(t, 3, countChanges(" M a\n?? b\n D c\n"))
}

func TestIsUpToDate(t *testing.T) {
	assert.True(t, isUpToDate("Current branch hacs/reolink is up to date."))
	assert.False(t, isUpToDate("Successfully rebased and updated refs/heads/hacs/reolink."))
}

func TestOutputCombined(t *testing.T) {
	assert.Equal(t, "out\nerr", Output{Stdout: "out\n", Stderr: "err\n"}.Combined())
	assert.Equal(t, "err", Output{Stderr: "err\n"}.Combined())
	assert.Equal(t, "", Output{}.Combined())
}

func TestExecRunnerFailure(t *testing.T) {
	dir := t.TempDir()
	r := &execRunner{log: zerolog.Nop()}

	_, err := r.Run(context.Background(), dir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 128, execErr.ExitCode)
	assert.Equal(t, dir, execErr.Dir)
	assert.Contains(t, execErr.Stderr, "not a git repository")
	assert.Equal(t, 128, exitCode(err))
}

func TestExecRunnerMissingProgram(t *testing.T) {
	r := &execRunner{log: zerolog.Nop()}

	_, err := r.Run(context.Background(), t.TempDir(), "compsync-no-such-program")
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 0, execErr.ExitCode)
	assert.Equal(t, 1, exitCode(err))
}
