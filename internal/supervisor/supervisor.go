// Package supervisor owns the lifecycle of upstream child processes spawned
// by common_service entries that carry a startup_cmd/working_dir pair.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Spec is one service's child-process configuration.
type Spec struct {
	ServiceName string
	StartupCmd  string
	WorkingDir  string
	WaitAfter   time.Duration
}

// Set owns the children of one generation. Zero value is ready to use.
type Set struct {
	Logger   zerolog.Logger
	children []*exec.Cmd
}

// Spawn starts every spec's command in order, sleeping for WaitAfter after
// each spawn before moving on (intentionally blocking: it happens only
// during reload setup, before the new generation accepts any traffic).
// A spawn failure aborts the whole generation, matching the fatal
// child_spawn_failed category.
func (s *Set) Spawn(specs []Spec) error {
	for _, spec := range specs {
		cmd := commandFor(spec)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("child_spawn_failed: %s: %w", spec.ServiceName, err)
		}
		s.Logger.Info().Str("service", spec.ServiceName).Int("pid", cmd.Process.Pid).Msg("spawned child process")
		s.children = append(s.children, cmd)
		if spec.WaitAfter > 0 {
			time.Sleep(spec.WaitAfter)
		}
	}
	return nil
}

// KillAll terminates every child owned by this set, ignoring processes that
// already exited.
func (s *Set) KillAll() {
	for _, cmd := range s.children {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			s.Logger.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("failed to kill child process")
		}
		_ = cmd.Wait()
	}
	s.children = nil
}

func commandFor(spec Spec) *exec.Cmd {
	fields := strings.Fields(spec.StartupCmd)
	var cmd *exec.Cmd
	if len(fields) == 0 {
		cmd = exec.Command(spec.StartupCmd)
	} else {
		cmd = exec.Command(fields[0], fields[1:]...)
	}
	cmd.Dir = spec.WorkingDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}
