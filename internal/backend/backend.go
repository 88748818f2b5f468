// Package backend implements the execution-backend adapters. Each adapter
// drives one container technology through its command-line interface and
// satisfies the api.Adapter contract; the engine never talks to a runtime
// directly.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/mgeddes/cabrun/pkg/api"
)

// New returns an adapter for the given backend kind. image is the cab
// image reference, name the unique per-run instance name, logFile the
// host path the backend's output is appended to. timeout, when positive,
// bounds each backend invocation.
func New(kind api.BackendKind, image, name, logFile string, timeout time.Duration) (api.Adapter, error) {
	switch kind {
	case api.BackendDocker:
		return NewDocker(image, name, logFile, timeout), nil
	case api.BackendPodman:
		return NewPodman(image, name, logFile, timeout), nil
	case api.BackendUDocker:
		return NewUDocker(image, name, logFile, timeout), nil
	case api.BackendSingularity:
		return NewSingularity(image, name, logFile, timeout), nil
	}
	return nil, api.NewParameterError("unknown backend kind: %s", kind)
}

// base carries the state shared by the CLI adapters.
type base struct {
	kind    api.BackendKind
	image   string
	name    string
	logFile string
	timeout time.Duration
	volumes []api.Volume
	env     map[string]string
}

func newBase(kind api.BackendKind, image, name, logFile string, timeout time.Duration) base {
	return base{
		kind:    kind,
		image:   image,
		name:    name,
		logFile: logFile,
		timeout: timeout,
		env:     make(map[string]string),
	}
}

func (b *base) AddVolume(host, container, perm string) {
	if perm == "" {
		perm = "rw"
	}
	b.volumes = append(b.volumes, api.Volume{Host: host, Container: container, Perm: perm})
}

func (b *base) AddEnv(key, value string) { b.env[key] = value }

func (b *base) Kind() api.BackendKind { return b.kind }
func (b *base) Image() string         { return b.image }
func (b *base) LogFile() string       { return b.logFile }

func (b *base) Volumes() []api.Volume {
	return append([]api.Volume(nil), b.volumes...)
}

func (b *base) Environment() map[string]string {
	out := make(map[string]string, len(b.env))
	for k, v := range b.env {
		out[k] = v
	}
	return out
}

// envArgs renders the environment as flag pairs, in deterministic order.
func (b *base) envArgs(flag string) []string {
	keys := make([]string, 0, len(b.env))
	for k := range b.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var args []string
	for _, k := range keys {
		args = append(args, flag, k+"="+b.env[k])
	}
	return args
}

// run executes program with args, appending combined output to the job's
// log file. A non-zero exit or a failed spawn is reported as a
// RuntimeError.
func (b *base) run(ctx context.Context, program string, args ...string) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	cmdline := strings.TrimSpace(program + " " + strings.Join(args, " "))
	err := cmd.Run()
	if b.logFile != "" {
		appendLog(b.logFile, cmdline, out.Bytes())
	}
	if err != nil {
		return &api.RuntimeError{
			Job:     b.name,
			Backend: string(b.kind),
			Cause:   fmt.Errorf("%s: %w: %s", cmdline, err, strings.TrimSpace(out.String())),
		}
	}
	return nil
}

// appendLog is best-effort: a broken log file must not fail the job.
func appendLog(path, header string, out []byte) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "$ %s\n", header)
	f.Write(out)
}
