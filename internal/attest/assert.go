package attest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/oracle"
)

// eventually checks that the condition becomes true within the given period.
func eventually(ctx context.Context, condition func() bool, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
			if condition() {
				return true
			}
		}
	}

	return false
}

// consistently checks that the condition is always true for the given period.
func consistently(ctx context.Context, condition func() bool, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
			if !condition() {
				return false
			}
		}
	}

	return true
}

// Assert defines the interface for executing and validating test assertions.
type Assert interface {
	// Assert executes the operation and validates the result.
	Assert(help string)
	// execute executes the operation once and returns whether it meets expectations.
	execute() bool
	// check validates the result and panics with formatted error message on failure.
	check()
	// formatHelp formats help text with proper indentation for error messages.
	formatHelp() string
}

var _ Assert = (*CLIAssert)(nil)

// AssertBase provides common assertion functionality.
type AssertBase struct {
	help string

	config *Config
}

func (a *AssertBase) formatHelp() string {
	return "\n\n  " + strings.ReplaceAll(a.help, "\n", "\n  ")
}

// CLIAssert provides assertions on a command's exit code, output and JSON fields.
type CLIAssert struct {
	AssertBase

	promise  *CLIPromise
	output   string
	exitCode int

	exitCheckers   []Checker[int]
	outputCheckers []Checker[string]
	jsonCheckers   []JSONFieldChecker

	prediction *oracle.Result
}

// ExitCode adds expected exit code checkers.
// All checkers must pass.
func (a *CLIAssert) ExitCode(checkers ...Checker[int]) *CLIAssert {
	a.exitCheckers = append(a.exitCheckers, checkers...)
	return a
}

// Output adds expected command output checkers.
// All checkers must pass.
func (a *CLIAssert) Output(checkers ...Checker[string]) *CLIAssert {
	a.outputCheckers = append(a.outputCheckers, checkers...)
	return a
}

// JSON adds expected checkers for a field of the command's JSON output at the given gjson path.
// All checkers must pass.
func (a *CLIAssert) JSON(path string, checkers ...Checker[string]) *CLIAssert {
	for _, checker := range checkers {
		a.jsonCheckers = append(a.jsonCheckers, JSONFieldChecker{
			Path:    path,
			Checker: checker,
		})
	}

	return a
}

// Prediction adds checkers requiring the observed liveset and coordinator to match result.
// On total fencing only the empty liveset is checked.
func (a *CLIAssert) Prediction(result *oracle.Result) *CLIAssert {
	a.prediction = result
	a.JSON("liveset", SameSet(result.Liveset()...))
	if !result.TotalFencing() {
		a.JSON("master", Is(string(result.Coordinator())))
	}

	return a
}

func (a *CLIAssert) Assert(help string) {
	a.help = help

	p := a.promise
	switch p.timing {
	case TimingEventually:
		eventually(p.ctx, a.execute, p.timeout, a.config.RetryPollInterval)
	case TimingConsistently:
		consistently(p.ctx, a.execute, p.timeout, a.config.RetryPollInterval)
	default:
		a.execute()
	}

	a.check()
}

func (a *CLIAssert) execute() bool {
	p := a.promise

	ctx, cancel := context.WithTimeout(p.ctx, a.config.ExecuteTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command, p.args...)

	stdout, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			a.output = fmt.Sprintf("%s timed out after %s", p.command, a.config.ExecuteTimeout)
			a.exitCode = -1
		} else if errors.Is(ctx.Err(), context.Canceled) {
			a.output = fmt.Sprintf("%s was cancelled", p.command)
			a.exitCode = -1
		} else if errors.As(err, &exitError) {
			a.output = string(exitError.Stderr)
			a.exitCode = exitError.ExitCode()
		} else {
			panic(err.Error())
		}
	} else {
		a.output = string(stdout)
		a.exitCode = 0
	}

	return checkAll(a.exitCode, a.exitCheckers, nil) &&
		checkAll(a.output, a.outputCheckers, nil) &&
		checkAllJSON(a.output, a.jsonCheckers, nil)
}

func (a *CLIAssert) check() {
	p := a.promise
	command := strings.TrimSpace(p.command + " " + strings.Join(p.args, " "))

	checkAll(a.exitCode, a.exitCheckers, func(m Checker[int], actual int) {
		msg := fmt.Sprintf("%s\n  Expected exit code: %s\n  Actual exit code: %d%s",
			command, m.Expected(), actual, a.formatHelp())
		panic(msg)
	})

	checkAll(a.output, a.outputCheckers, func(m Checker[string], actual string) {
		msg := fmt.Sprintf("%s\n  Expected output: %s\n  Actual output: %q%s",
			command, m.Expected(), actual, a.formatHelp())
		panic(msg)
	})

	checkAllJSON(a.output, a.jsonCheckers, func(m JSONFieldChecker, actual string) {
		var differences string
		if a.prediction != nil {
			diffs := a.prediction.Diff(observation(a.output))
			differences = "\n  Differences from the prediction:\n    " + strings.Join(diffs, "\n    ")
		}

		msg := fmt.Sprintf("%s\n  Expected %q: %s\n  Actual value: %s%s%s",
			command, m.Path, m.Checker.Expected(), actual, differences, a.formatHelp())
		panic(msg)
	})
}

// observation reads the pool state printed by the observe command.
func observation(output string) oracle.Observation {
	var o oracle.Observation
	for _, id := range gjson.Get(output, "liveset").Array() {
		o.Liveset = append(o.Liveset, cluster.NodeID(id.String()))
	}
	o.Coordinator = cluster.NodeID(gjson.Get(output, "master").String())

	return o
}
