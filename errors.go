package main

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a sync run stopped
type ErrorKind int

const (
	EnvironmentError ErrorKind = iota
	PreconditionError
	UpstreamOperationError
	PublishError
)

func (k ErrorKind) String() string {
	switch k {
	case PreconditionError:
		return "precondition error"
	case UpstreamOperationError:
		return "upstream operation error"
	case PublishError:
		return "publish error"
	}
	return "environment error"
}

// SyncError is returned by every failing workflow step
type SyncError struct {
	Kind ErrorKind
	Step string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func newSyncError(kind ErrorKind, step string, err error) *SyncError {
	return &SyncError{Kind: kind, Step: step, Err: err}
}

// kindOf returns the kind of a workflow error, EnvironmentError if it has none
func kindOf(err error) ErrorKind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return EnvironmentError
}

// ExecError describes an external command that exited unsuccessfully
type ExecError struct {
	Name     string
	Args     []string
	Dir      string
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *ExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString(e.Name)
	for _, a := range e.Args {
		b.WriteString(" ")
		b.WriteString(a)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if out := e.Output(); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Output returns the command's own diagnostic text
func (e *ExecError) Output() string {
	return joinOutput(e.Stdout, e.Stderr)
}

// exitCode maps an error to a process exit code, passing through the exit
// code of a failed external command
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var execErr *ExecError
	if errors.As(err, &execErr) && execErr.ExitCode > 0 {
		return execErr.ExitCode
	}
	return 1
}

func joinOutput(stdout, stderr string) string {
	stdout = strings.TrimSpace(stdout)
	stderr = strings.TrimSpace(stderr)
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	}
	return stdout + "\n" + stderr
}
