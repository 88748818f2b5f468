package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/mgeddes/cabrun/pkg/api"
)

// dockerCLI implements the adapter contract for docker-compatible
// command-line runtimes. podman exposes the same surface, so both kinds
// share this implementation.
type dockerCLI struct {
	base
	program string
}

var _ api.Adapter = (*dockerCLI)(nil)

// NewDocker returns an adapter driving the docker CLI.
func NewDocker(image, name, logFile string, timeout time.Duration) api.Adapter {
	return &dockerCLI{
		base:    newBase(api.BackendDocker, image, name, logFile, timeout),
		program: "docker",
	}
}

// NewPodman returns an adapter driving the podman CLI.
func NewPodman(image, name, logFile string, timeout time.Duration) api.Adapter {
	return &dockerCLI{
		base:    newBase(api.BackendPodman, image, name, logFile, timeout),
		program: "podman",
	}
}

func (d *dockerCLI) Create(ctx context.Context) error {
	args := []string{"create", "--name", d.name}
	for _, v := range d.volumes {
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", v.Host, v.Container, v.Perm))
	}
	args = append(args, d.envArgs("-e")...)
	args = append(args, d.image)
	return d.run(ctx, d.program, args...)
}

func (d *dockerCLI) Start(ctx context.Context) error {
	// -a blocks until the container exits and surfaces its exit code.
	return d.run(ctx, d.program, "start", "-a", d.name)
}

func (d *dockerCLI) Stop(ctx context.Context) error {
	return d.run(ctx, d.program, "stop", d.name)
}

func (d *dockerCLI) Remove(ctx context.Context) error {
	return d.run(ctx, d.program, "rm", "-f", d.name)
}

func (d *dockerCLI) Pause(ctx context.Context) error {
	return d.run(ctx, d.program, "pause", d.name)
}

func (d *dockerCLI) Resume(ctx context.Context) error {
	return d.run(ctx, d.program, "unpause", d.name)
}
