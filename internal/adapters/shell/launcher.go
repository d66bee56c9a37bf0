// Package shell provides the worker process launcher adapter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.trai.ch/kbridge/internal/adapters/transport/stream"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// waitDelay bounds how long a closed worker may keep its pipes open.
const waitDelay = 5 * time.Second

// Launcher implements ports.WorkerLauncher using os/exec.
// The worker speaks the bridge protocol on its stdin and stdout.
type Launcher struct {
	logger ports.Logger
	env    map[string]string
}

// NewLauncher creates a new Launcher. env overrides the inherited environment of every worker.
func NewLauncher(logger ports.Logger, env map[string]string) *Launcher {
	return &Launcher{
		logger: logger,
		env:    env,
	}
}

// Launch starts the worker command and returns a transport connected to its stdio.
// Closing the transport closes the worker's stdin and waits for it to exit.
func (l *Launcher) Launch(ctx context.Context, command []string) (ports.Transport, error) {
	if len(command) == 0 {
		return nil, zerr.New("worker command is empty")
	}

	name := command[0]
	cmdEnv := resolveEnvironment(os.Environ(), l.env)

	executable := name
	if !filepath.IsAbs(name) && !strings.ContainsRune(name, filepath.Separator) {
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, command[1:]...) //nolint:gosec // worker command is configured by the user
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}
	cmd.Env = cmdEnv
	cmd.WaitDelay = waitDelay

	stderr := &logWriter{logger: l.logger}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open worker stdout")
	}

	if err := cmd.Start(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to start worker"), "command", name)
	}
	l.logger.Debug("worker started", "command", name, "pid", cmd.Process.Pid)

	return stream.New(stdout, stdin,
		stream.WithLogger(l.logger),
		stream.WithClosers(stdin, &waiter{cmd: cmd, stderr: stderr}),
	), nil
}

var _ ports.WorkerLauncher = (*Launcher)(nil)

// waiter reaps the worker process once its stdin is closed.
type waiter struct {
	cmd    *exec.Cmd
	stderr *logWriter
}

func (w *waiter) Close() error {
	err := w.cmd.Wait()
	w.stderr.Flush()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return zerr.With(zerr.Wrap(err, "worker failed"), "exit_code", exitErr.ExitCode())
	}
	return zerr.Wrap(err, "worker failed")
}

// logWriter forwards complete lines written by the worker to the logger.
type logWriter struct {
	logger ports.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimSuffix(line, "\n"))
	}
	return len(p), nil
}

// Flush emits a trailing line that was not terminated by a newline.
func (w *logWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *logWriter) emit(line string) {
	if line == "" {
		return
	}
	w.logger.Info(line)
}

// resolveEnvironment merges the worker overrides on top of the system environment.
// The result is sorted so the spawned environment is deterministic.
func resolveEnvironment(sysEnv []string, workerEnv map[string]string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if ok {
			envMap[k] = v
		}
	}

	for k, v := range workerEnv {
		if k == "PATH" {
			if sysPath, exists := envMap["PATH"]; exists && sysPath != "" {
				envMap[k] = v + string(os.PathListSeparator) + sysPath
				continue
			}
		}
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// lookPath searches for an executable in the directories named by the PATH entry of env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
