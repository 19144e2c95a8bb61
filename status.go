package main

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// inspect reads the state of both working trees without changing anything
func inspect(ctx context.Context, cfg Config, r Runner, stderr io.Writer, verbose bool) (*Status, error) {
	up, err := inspectTree(ctx, r, cfg.Upstream.Path, stderr, verbose)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	on := up.Branch == cfg.Upstream.TrackingBranch
	up.TrackingBranch = cfg.Upstream.TrackingBranch
	up.OnTrackingBranch = &on
	tag, err := latestTag(ctx, r, cfg.Upstream.Path)
	switch {
	case errors.Is(err, errNoTags):
		if verbose {
			fmt.Fprintf(stderr, "  no tags in %s\n", cfg.Upstream.Path)
		}
	case err != nil:
		return nil, fmt.Errorf("upstream: failed to resolve latest tag: %w", err)
	default:
		up.LatestTag = tag
	}

	down, err := inspectTree(ctx, r, cfg.Downstream.Path, stderr, verbose)
	if err != nil {
		return nil, fmt.Errorf("downstream: %w", err)
	}
	info, err := readInfo(cfg.infoFilePath())
	if err != nil {
		return nil, fmt.Errorf("downstream: %w", err)
	}
	down.SyncedTag = info.Tag
	status, err := statusPorcelain(ctx, r, cfg.Downstream.Path)
	if err != nil {
		return nil, fmt.Errorf("downstream: %w", err)
	}
	pending := countChanges(status)
	down.PendingChanges = &pending

	if pending > 0 {
		fmt.Fprintf(stderr, "warning: %s has uncommitted changes\n", cfg.Downstream.Path)
	}
	if up.LatestTag != "" && up.LatestTag != down.SyncedTag {
		fmt.Fprintf(stderr, "warning: downstream is synced to %q, latest upstream tag is %q\n", down.SyncedTag, up.LatestTag)
	}

	return &Status{Upstream: *up, Downstream: *down}, nil
}

// inspectTree reads the branch and commit of a working tree
func inspectTree(ctx context.Context, r Runner, dir string, stderr io.Writer, verbose bool) (*TreeStatus, error) {
	if verbose {
		fmt.Fprintf(stderr, "inspecting %s\n", dir)
	}
	branch, err := getBranch(ctx, r, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read branch: %w", err)
	}
	commit, err := getCommit(ctx, r, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit: %w", err)
	}
	if verbose {
		fmt.Fprintf(stderr, "  branch: %s, commit: %s\n", branch, commit[:min(12, len(commit))])
	}
	return &TreeStatus{Path: dir, Branch: branch, Commit: commit}, nil
}
