package main

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output is what an external command wrote
type Output struct {
	Stdout string
	Stderr string
}

// Combined returns stdout and stderr trimmed and joined
func (o Output) Combined() string {
	return joinOutput(o.Stdout, o.Stderr)
}

// Runner runs external commands in a directory
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Output, error)
}

// execRunner runs commands as subprocesses
type execRunner struct {
	log zerolog.Logger
}

func (r *execRunner) Run(ctx context.Context, dir, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	r.log.Debug().
		Str("dir", dir).
		Str("cmd", name).
		Strs("args", args).
		Dur("took", time.Since(start)).
		Err(err).
		Msg("exec")

	if err != nil {
		execErr := &ExecError{
			Name:   name,
			Args:   args,
			Dir:    dir,
			Stdout: out.Stdout,
			Stderr: out.Stderr,
			Err:    err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return out, execErr
	}
	return out, nil
}

// git runs a git command in the specified directory and returns stdout
func git(ctx context.Context, r Runner, dir string, args ...string) (string, error) {
	out, err := r.Run(ctx, dir, "git", args...)
	return strings.TrimSpace(out.Stdout), err
}

// getBranch returns the current branch name, or "HEAD" if detached
func getBranch(ctx context.Context, r Runner, dir string) (string, error) {
	return git(ctx, r, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// getCommit returns the current HEAD commit SHA
func getCommit(ctx context.Context, r Runner, dir string) (string, error) {
	return git(ctx, r, dir, "rev-parse", "HEAD")
}

// getShortCommit returns the abbreviated HEAD commit SHA
func getShortCommit(ctx context.Context, r Runner, dir string) (string, error) {
	return git(ctx, r, dir, "rev-parse", "--short", "HEAD")
}

// getGitDir returns the absolute path of the repository's git directory
func getGitDir(ctx context.Context, r Runner, dir string) (string, error) {
	return git(ctx, r, dir, "rev-parse", "--absolute-git-dir")
}

// fetchAll fetches every remote and prunes deleted refs
func fetchAll(ctx context.Context, r Runner, dir string) error {
	_, err := r.Run(ctx, dir, "git", "fetch", "--all", "--prune")
	return err
}

var errNoTags = errors.New("no tags found")

// latestTag returns the tag on the most recently tagged commit
func latestTag(ctx context.Context, r Runner, dir string) (string, error) {
	commit, err := git(ctx, r, dir, "rev-list", "--tags", "--date-order", "--max-count=1")
	if err != nil {
		return "", err
	}
	if commit == "" {
		return "", errNoTags
	}
	return git(ctx, r, dir, "describe", "--tags", "--abbrev=0", commit)
}

// rebase rebases the current branch onto onto and returns git's output
func rebase(ctx context.Context, r Runner, dir, onto string) (string, error) {
	out, err := r.Run(ctx, dir, "git", "rebase", onto)
	return out.Combined(), err
}

// isUpToDate reports whether rebase output says nothing was rebased
func isUpToDate(rebaseOutput string) bool {
	return strings.Contains(rebaseOutput, "is up to date")
}

// forcePush overwrites branch on remote
func forcePush(ctx context.Context, r Runner, dir, remote, branch string) error {
	_, err := r.Run(ctx, dir, "git", "push", "--force", remote, branch)
	return err
}

// pullTheirs pulls branch from remote, resolving conflicts in favor of the remote
func pullTheirs(ctx context.Context, r Runner, dir, remote, branch string) error {
	_, err := r.Run(ctx, dir, "git", "pull", "--no-rebase", "--no-edit", "-X", "theirs", remote, branch)
	return err
}

// statusPorcelain returns the porcelain status listing of the working tree
func statusPorcelain(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "git", "status", "--porcelain")
	return strings.TrimRight(out.Stdout, "\n"), err
}

// countChanges counts the paths in a porcelain status listing
func countChanges(status string) int {
	n := 0
	for _, line := range strings.Split(status, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// commitAll stages every change and commits it
func commitAll(ctx context.Context, r Runner, dir, message string, allowEmpty bool) error {
	if _, err := r.Run(ctx, dir, "git", "add", "-A"); err != nil {
		return err
	}
	args := []string{"commit", "-m", message}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	_, err := r.Run(ctx, dir, "git", args...)
	return err
}

// pushHead pushes HEAD to branch on remote
func pushHead(ctx context.Context, r Runner, dir, remote, branch string) error {
	_, err := r.Run(ctx, dir, "git", "push", remote, "HEAD:"+branch)
	return err
}
