package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Workflow rebases the upstream tracking branch onto the latest tag and syncs
// the component into the downstream repository.
type Workflow struct {
	cfg Config
	r   Runner
	log zerolog.Logger
	pr  *printer
}

func newWorkflow(cfg Config, r Runner, log zerolog.Logger, pr *printer) *Workflow {
	return &Workflow{cfg: cfg, r: r, log: log, pr: pr}
}

// Run performs one sync. The steps run in order and the first error stops
// the run; nothing is retried or rolled back.
func (w *Workflow) Run(ctx context.Context) (*RunResult, error) {
	locks, err := lockTrees(w.cfg.LockDir, w.cfg.Upstream.Path, w.cfg.Downstream.Path)
	if err != nil {
		return nil, newSyncError(EnvironmentError, "lock", err)
	}
	defer locks.release()

	state := &RepoState{}

	if err := w.preflight(ctx, state); err != nil {
		return nil, err
	}

	if err := w.rebaseUpstream(ctx, state); err != nil {
		return nil, err
	}
	if state.UpToDate {
		if !w.cfg.ForceUpdate {
			return w.shortCircuit(OutcomeUpToDate, state,
				fmt.Sprintf("%s is already up to date with %s", w.cfg.Upstream.TrackingBranch, state.Tag)), nil
		}
		w.log.Debug().Str("tag", state.Tag).Msg("rebase was a no-op, continuing because of --force-update")
	}

	if err := w.publishUpstream(ctx); err != nil {
		return nil, err
	}

	if err := w.syncDownstream(ctx); err != nil {
		return nil, err
	}

	if err := w.detectChanges(ctx, state); err != nil {
		return nil, err
	}
	if state.Changes == 0 && !w.cfg.ForceUpdate {
		return w.shortCircuit(OutcomeNoChanges, state,
			fmt.Sprintf("No changes to %s at %s", w.cfg.Component, state.Tag)), nil
	}

	if err := w.commit(ctx, state); err != nil {
		return nil, err
	}

	if err := w.publishDownstream(ctx); err != nil {
		return nil, err
	}

	return w.report(ctx, state)
}

func (w *Workflow) shortCircuit(outcome Outcome, state *RepoState, summary string) *RunResult {
	w.log.Debug().Stringer("outcome", outcome).Msg("nothing to do")
	return &RunResult{
		Outcome: outcome,
		Tag:     state.Tag,
		Changes: state.Changes,
		Summary: summary,
	}
}

// preflight verifies the upstream tree is on the tracking branch and removes
// stale rebase state. Nothing is changed if the branch is wrong.
func (w *Workflow) preflight(ctx context.Context, state *RepoState) error {
	const step = "preflight"
	up := w.cfg.Upstream

	branch, err := getBranch(ctx, w.r, up.Path)
	if err != nil {
		return newSyncError(EnvironmentError, step, fmt.Errorf("failed to read upstream branch: %w", err))
	}
	state.Branch = branch
	if branch != up.TrackingBranch {
		return newSyncError(PreconditionError, step,
			fmt.Errorf("upstream %s is on branch %q, expected %q", up.Path, branch, up.TrackingBranch))
	}

	gitDir, err := getGitDir(ctx, w.r, up.Path)
	if err != nil {
		return newSyncError(EnvironmentError, step, err)
	}
	state.GitDir = gitDir
	for _, marker := range []string{"rebase-apply", "rebase-merge"} {
		p := filepath.Join(gitDir, marker)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		w.log.Debug().Str("path", p).Msg("removing stale rebase state")
		if err := os.RemoveAll(p); err != nil {
			return newSyncError(EnvironmentError, step, fmt.Errorf("failed to remove %s: %w", p, err))
		}
	}

	w.pr.success("%s is on %s", up.Path, branch)
	return nil
}

// rebaseUpstream fetches, resolves the latest tag and rebases the tracking
// branch onto it. A failed rebase is left in place for manual resolution.
func (w *Workflow) rebaseUpstream(ctx context.Context, state *RepoState) error {
	const step = "rebase"
	dir := w.cfg.Upstream.Path

	w.pr.step("Fetching upstream")
	if err := fetchAll(ctx, w.r, dir); err != nil {
		return newSyncError(EnvironmentError, step, fmt.Errorf("failed to fetch: %w", err))
	}

	tag, err := latestTag(ctx, w.r, dir)
	if err != nil {
		return newSyncError(UpstreamOperationError, step, fmt.Errorf("failed to resolve latest tag: %w", err))
	}
	if err := checkTag(tag, w.cfg.TagConstraint); err != nil {
		return newSyncError(UpstreamOperationError, step, err)
	}
	state.Tag = tag

	w.pr.step("Rebasing %s onto %s", w.cfg.Upstream.TrackingBranch, tag)
	out, err := rebase(ctx, w.r, dir, tag)
	state.RebaseOutput = out
	if err != nil {
		return newSyncError(UpstreamOperationError, step, err)
	}
	state.UpToDate = isUpToDate(out)
	if !state.UpToDate {
		w.pr.success("Rebased %s onto %s", w.cfg.Upstream.TrackingBranch, tag)
	}
	return nil
}

// checkTag verifies tag satisfies constraint. An empty constraint accepts
// any tag.
func checkTag(tag, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid tag constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(tag)
	if err != nil {
		return fmt.Errorf("tag %q is not a version: %w", tag, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("tag %q does not satisfy %q", tag, constraint)
	}
	return nil
}

func (w *Workflow) publishUpstream(ctx context.Context) error {
	up := w.cfg.Upstream
	w.pr.step("Force pushing %s to %s", up.TrackingBranch, up.ForkRemote)
	if err := forcePush(ctx, w.r, up.Path, up.ForkRemote, up.TrackingBranch); err != nil {
		return newSyncError(PublishError, "push upstream", err)
	}
	w.pr.success("Pushed %s to %s", up.TrackingBranch, up.ForkRemote)
	return nil
}

// syncDownstream pulls the downstream tree and replaces its component
// directory with the upstream one.
func (w *Workflow) syncDownstream(ctx context.Context) error {
	const step = "sync downstream"
	down := w.cfg.Downstream

	w.pr.step("Pulling %s %s", down.Remote, down.Branch)
	if err := pullTheirs(ctx, w.r, down.Path, down.Remote, down.Branch); err != nil {
		return newSyncError(EnvironmentError, step, fmt.Errorf("failed to pull: %w", err))
	}

	for _, argv := range w.cfg.Prepare {
		w.pr.step("Running %v", argv)
		if _, err := w.r.Run(ctx, w.cfg.Upstream.Path, argv[0], argv[1:]...); err != nil {
			return newSyncError(EnvironmentError, step, err)
		}
	}

	src, dst := w.cfg.upstreamComponentDir(), w.cfg.downstreamComponentDir()
	w.pr.step("Copying %s to %s", src, dst)
	if err := replaceDir(src, dst); err != nil {
		return newSyncError(EnvironmentError, step, err)
	}
	w.pr.success("Synced %s", down.ComponentPath)
	return nil
}

func (w *Workflow) detectChanges(ctx context.Context, state *RepoState) error {
	status, err := statusPorcelain(ctx, w.r, w.cfg.Downstream.Path)
	if err != nil {
		return newSyncError(EnvironmentError, "status", err)
	}
	state.Status = status
	state.Changes = countChanges(status)
	w.log.Debug().Int("changes", state.Changes).Msg("downstream status")
	return nil
}

// commit writes the info file and commits everything in the downstream tree
func (w *Workflow) commit(ctx context.Context, state *RepoState) error {
	const step = "commit"

	if err := writeInfo(w.cfg.infoFilePath(), Info{Component: w.cfg.Component, Tag: state.Tag}); err != nil {
		return newSyncError(EnvironmentError, step, err)
	}
	msg, err := w.cfg.commitMessage(state.Tag, state.Changes)
	if err != nil {
		return newSyncError(EnvironmentError, step, err)
	}
	allowEmpty := state.Changes == 0 && w.cfg.ForceUpdate
	if err := commitAll(ctx, w.r, w.cfg.Downstream.Path, msg, allowEmpty); err != nil {
		return newSyncError(EnvironmentError, step, err)
	}
	w.pr.success("Committed %d changed paths", state.Changes)
	return nil
}

func (w *Workflow) publishDownstream(ctx context.Context) error {
	down := w.cfg.Downstream
	w.pr.step("Pushing to %s %s", down.Remote, down.Branch)
	if err := pushHead(ctx, w.r, down.Path, down.Remote, down.Branch); err != nil {
		return newSyncError(PublishError, "push downstream", err)
	}
	return nil
}

func (w *Workflow) report(ctx context.Context, state *RepoState) (*RunResult, error) {
	hash, err := getShortCommit(ctx, w.r, w.cfg.Downstream.Path)
	if err != nil {
		return nil, newSyncError(EnvironmentError, "report", err)
	}
	return &RunResult{
		Outcome:   OutcomeDone,
		Tag:       state.Tag,
		ShortHash: hash,
		Changes:   state.Changes,
		Summary:   fmt.Sprintf("Synced %s to %s (%s)", w.cfg.Component, state.Tag, hash),
	}, nil
}

// writeInfo overwrites the info file
func writeInfo(path string, info Info) error {
	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode info file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create info file directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write info file: %w", err)
	}
	return nil
}

// readInfo reads the info file. A missing file yields an empty Info.
func readInfo(path string) (Info, error) {
	var info Info
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("failed to read info file: %w", err)
	}
	if err := yaml.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("failed to parse info file %s: %w", path, err)
	}
	return info, nil
}
