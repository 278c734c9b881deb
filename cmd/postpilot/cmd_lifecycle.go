package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

const pidFileName = "postpilot.pid"

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// runningDaemon resolves the daemon process from the PID file under the
// data dir. Signal 0 probes liveness without touching the process.
func runningDaemon() (*os.Process, int, error) {
	cfg := loadConfig()
	data, err := os.ReadFile(filepath.Join(cfg.DataDir, pidFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("no scheduler daemon running (start one with 'postpilot serve')")
		}
		return nil, 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("invalid PID file content: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, 0, fmt.Errorf("stale PID file: process %d is gone", pid)
	}
	return proc, pid, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the scheduler daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, pid, err := runningDaemon()
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM: %w", err)
		}
		fmt.Printf("Stopping scheduler daemon (pid %d). In-flight publishes finish first.\n", pid)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the scheduler daemon to pick up config changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, pid, err := runningDaemon()
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGHUP); err != nil {
			return fmt.Errorf("send SIGHUP: %w", err)
		}
		fmt.Printf("Asked scheduler daemon (pid %d) to restart.\n", pid)
		return nil
	},
}
