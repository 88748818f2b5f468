package backend

import (
	"context"

	"github.com/mgeddes/cabrun/pkg/api"
)

// Fake is a scripted adapter for tests. It records lifecycle calls in
// order and returns whatever errors it was told to.
type Fake struct {
	base

	CreateErr error
	StartErr  error
	StopErr   error

	Calls []string
}

var _ api.Adapter = (*Fake)(nil)

// NewFake returns a fake adapter posing as the given backend kind.
func NewFake(kind api.BackendKind, image, name string) *Fake {
	return &Fake{base: newBase(kind, image, name, "", 0)}
}

func (f *Fake) Create(ctx context.Context) error {
	f.Calls = append(f.Calls, "create")
	return f.CreateErr
}

func (f *Fake) Start(ctx context.Context) error {
	f.Calls = append(f.Calls, "start")
	return f.StartErr
}

func (f *Fake) Stop(ctx context.Context) error {
	f.Calls = append(f.Calls, "stop")
	return f.StopErr
}

func (f *Fake) Remove(ctx context.Context) error {
	f.Calls = append(f.Calls, "remove")
	return nil
}

func (f *Fake) Pause(ctx context.Context) error {
	f.Calls = append(f.Calls, "pause")
	return nil
}

func (f *Fake) Resume(ctx context.Context) error {
	f.Calls = append(f.Calls, "resume")
	return nil
}
