package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Process is a bus server running as a child process, spoken to over its
// stdin and stdout.
type Process struct {
	*Client

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *zap.Logger
}

// Spawn startet den Bus-Server als Kindprozess
func Spawn(ctx context.Context, path string, args []string, logger *zap.Logger) (*Process, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	logger.Info("Bus server process started",
		zap.String("path", path),
		zap.Int("pid", cmd.Process.Pid))

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		logger: logger,
	}
	p.Client = NewClient(stdout, stdin, nil)
	return p, nil
}

// Close closes the child's stdin, which ends its serve loop, and waits for
// it to exit.
func (p *Process) Close() error {
	_ = p.Client.Close()

	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	err := p.cmd.Wait()
	p.logger.Info("Bus server process exited", zap.Error(err))
	return err
}
