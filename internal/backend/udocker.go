package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/mgeddes/cabrun/pkg/api"
)

// uDocker drives the unprivileged udocker runtime. udocker has no
// stop/pause lifecycle of its own; a run is a foreground process, so Stop
// and Remove both translate to removing the created container.
type uDocker struct {
	base
}

var _ api.Adapter = (*uDocker)(nil)

// NewUDocker returns an adapter driving the udocker CLI.
func NewUDocker(image, name, logFile string, timeout time.Duration) api.Adapter {
	return &uDocker{base: newBase(api.BackendUDocker, image, name, logFile, timeout)}
}

func (u *uDocker) Create(ctx context.Context) error {
	return u.run(ctx, "udocker", "create", "--name="+u.name, u.image)
}

func (u *uDocker) Start(ctx context.Context) error {
	args := []string{"run"}
	// udocker takes host:container bindings without a permission suffix.
	for _, v := range u.volumes {
		args = append(args, "-v", fmt.Sprintf("%s:%s", v.Host, v.Container))
	}
	args = append(args, u.envArgs("-e")...)
	args = append(args, u.name)
	return u.run(ctx, "udocker", args...)
}

func (u *uDocker) Stop(ctx context.Context) error {
	return u.run(ctx, "udocker", "rm", "-f", u.name)
}

func (u *uDocker) Remove(ctx context.Context) error {
	return u.run(ctx, "udocker", "rm", "-f", u.name)
}

func (u *uDocker) Pause(ctx context.Context) error {
	return fmt.Errorf("udocker: pause is not supported")
}

func (u *uDocker) Resume(ctx context.Context) error {
	return fmt.Errorf("udocker: resume is not supported")
}
