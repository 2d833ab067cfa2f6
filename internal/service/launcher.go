package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
)

// ProcessLauncher starts services as child processes. Their output is
// discarded; they keep running until stopped or until carlos exits.
type ProcessLauncher struct {
	// Time to wait after SIGINT before sending SIGKILL
	GracePeriod time.Duration
	// Logger receives process lifecycle events. Nil means log.Default().
	Logger *log.Logger
}

// NewProcessLauncher creates a launcher with a default grace period that
// logs to logger.
func NewProcessLauncher(logger *log.Logger) *ProcessLauncher {
	return &ProcessLauncher{GracePeriod: 3 * time.Second, Logger: logger}
}

func (l *ProcessLauncher) logger() *log.Logger {
	if l.Logger == nil {
		return log.Default()
	}
	return l.Logger
}

// checkBinary checks if a binary exists in the system PATH.
func checkBinary(name string) error {
	_, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("binary '%s' not found in PATH: %w", name, err)
	}
	return nil
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	command, err := homedir.Expand(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("unable to expand command: %w", err)
	}
	if err := checkBinary(command); err != nil {
		return nil, err
	}

	// The process must outlive the context of the call that started it.
	cmd := exec.Command(command, spec.Args...) //nolint:gosec
	if spec.Dir != "" {
		dir, err := homedir.Expand(spec.Dir)
		if err != nil {
			return nil, fmt.Errorf("unable to expand directory: %w", err)
		}
		cmd.Dir = dir
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	logger := l.logger()
	logger.Debug("Started service process", "command", spec.String(), "pid", cmd.Process.Pid)

	p := &process{
		cmd:         cmd,
		done:        make(chan struct{}),
		gracePeriod: l.GracePeriod,
		logger:      logger,
	}
	go func() {
		p.err = cmd.Wait()
		logger.Debug("Service process exited", "command", spec.String(), "after", time.Since(start), "err", p.err)
		close(p.done)
	}()
	return p, nil
}

type process struct {
	cmd         *exec.Cmd
	done        chan struct{}
	err         error
	gracePeriod time.Duration
	logger      *log.Logger
}

func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

// Stop asks the process to exit with an interrupt, then kills it if it is
// still running after the grace period or when ctx ends.
func (p *process) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := sendInterrupt(p.cmd.Process); err != nil {
		p.logger.Debug("Failed to send interrupt signal", "error", err)
	}

	grace := time.NewTimer(p.gracePeriod)
	defer grace.Stop()

	select {
	case <-p.done:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	p.logger.Debug("Grace period expired, killing process", "pid", p.Pid())
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", p.Pid(), err)
	}
	<-p.done
	return nil
}

// sendInterrupt sends an interrupt signal to the process (platform-specific)
func sendInterrupt(proc *os.Process) error {
	if runtime.GOOS == "windows" {
		// Windows doesn't have SIGINT, use Kill directly
		return proc.Kill()
	}
	return proc.Signal(syscall.SIGINT)
}
