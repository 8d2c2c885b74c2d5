package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/virtengine/mlpipe/pkg/mlscheduler"
)

// processLauncher issues the fire-and-forget worker launch exec (spec.md
// §1 Non-goals: the sandbox/enclave runtime that actually isolates the
// worker process is a separate, opaque collaborator). It starts the
// process and returns as soon as the OS has accepted it; the scheduler
// learns the worker is usable only later, when it dials back and completes
// the manifest handshake (mlcoordinator's accept loop).
type processLauncher struct {
	dryRun bool
}

func (l *processLauncher) Launch(ctx context.Context, c mlscheduler.Component) error {
	if len(c.Command) == 0 {
		return fmt.Errorf("launch %s: empty command", c.Key.VersionedString())
	}
	if l.dryRun {
		fmt.Printf("[mlpipe-coordinator] dry-run launch for %s: %v (dir=%s)\n", c.Key.VersionedString(), c.Command, c.WorkingDir)
		return nil
	}

	cmd := exec.Command(c.Command[0], c.Command[1:]...)
	cmd.Dir = c.WorkingDir
	cmd.Env = append(os.Environ(), "MLPIPE_COMPONENT_ID="+c.ID)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker process for %s: %w", c.Key.VersionedString(), err)
	}
	// Fire-and-forget: the coordinator does not wait on the process here.
	// Reap it in the background so it never becomes a zombie; any failure
	// surfaces only as the worker never completing its manifest handshake.
	go func() { _ = cmd.Wait() }()
	return nil
}
