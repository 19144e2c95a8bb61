package main

// Outcome is how a sync run ended when it did not fail
type Outcome int

const (
	// OutcomeDone means a commit was made and pushed downstream
	OutcomeDone Outcome = iota
	// OutcomeUpToDate means the rebase was a no-op and force-update was not set
	OutcomeUpToDate
	// OutcomeNoChanges means the downstream tree had nothing to commit
	OutcomeNoChanges
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeNoChanges:
		return "no-changes"
	}
	return "unknown"
}

// RepoState holds what a single run learns about the two working trees
type RepoState struct {
	Branch       string
	GitDir       string
	Tag          string
	RebaseOutput string
	UpToDate     bool
	Status       string
	Changes      int
}

// RunResult is the outcome of a sync run
type RunResult struct {
	Outcome   Outcome
	Tag       string
	ShortHash string
	Changes   int
	Summary   string
}

// Info is the content of the info file written to the downstream repository
type Info struct {
	Component string `yaml:"component"`
	Tag       string `yaml:"tag"`
}

// TreeStatus represents the state of a single working tree
type TreeStatus struct {
	Path             string `json:"path"`
	Branch           string `json:"branch"`
	Commit           string `json:"commit"`
	TrackingBranch   string `json:"tracking_branch,omitempty"`
	OnTrackingBranch *bool  `json:"on_tracking_branch,omitempty"`
	LatestTag        string `json:"latest_tag,omitempty"`
	SyncedTag        string `json:"synced_tag,omitempty"`
	PendingChanges   *int   `json:"pending_changes,omitempty"`
}

// Status represents the state of both working trees
type Status struct {
	Upstream   TreeStatus `json:"upstream"`
	Downstream TreeStatus `json:"downstream"`
}
