package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/mgeddes/cabrun/pkg/api"
)

// singularity drives the image-based singularity runtime. There is no
// separate container object: Create is a no-op and Start runs the image
// directly with its bindings.
type singularity struct {
	base
}

var _ api.Adapter = (*singularity)(nil)

// NewSingularity returns an adapter driving the singularity CLI.
func NewSingularity(image, name, logFile string, timeout time.Duration) api.Adapter {
	return &singularity{base: newBase(api.BackendSingularity, image, name, logFile, timeout)}
}

func (s *singularity) Create(ctx context.Context) error { return nil }

func (s *singularity) Start(ctx context.Context) error {
	args := []string{"run"}
	for _, v := range s.volumes {
		args = append(args, "--bind", fmt.Sprintf("%s:%s:%s", v.Host, v.Container, v.Perm))
	}
	args = append(args, s.envArgs("--env")...)
	args = append(args, s.image)
	return s.run(ctx, "singularity", args...)
}

// Stop has nothing to tear down: a singularity run is a foreground
// process that has already exited by the time the engine reacts.
func (s *singularity) Stop(ctx context.Context) error   { return nil }
func (s *singularity) Remove(ctx context.Context) error { return nil }

func (s *singularity) Pause(ctx context.Context) error {
	return fmt.Errorf("singularity: pause is not supported")
}

func (s *singularity) Resume(ctx context.Context) error {
	return fmt.Errorf("singularity: resume is not supported")
}
