package api

import "context"

// BackendKind identifies an execution technology. It is a closed set: jobs
// dispatch over these values, never over runtime-discovered names.
type BackendKind string

const (
	BackendDocker      BackendKind = "docker"
	BackendPodman      BackendKind = "podman"
	BackendUDocker     BackendKind = "udocker"
	BackendSingularity BackendKind = "singularity"
)

// Valid reports whether k is one of the known backend kinds.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendDocker, BackendPodman, BackendUDocker, BackendSingularity:
		return true
	}
	return false
}

// MountPaths are the in-container paths a backend exposes for the three
// standard data directories.
type MountPaths struct {
	Input  string
	Output string
	MSDir  string
}

// MountPathsFor returns the mount convention for the given backend kind.
// docker and podman place output and MS data under the container user's
// home directory; udocker and singularity use a flat /scratch layout.
func MountPathsFor(kind BackendKind, user string) MountPaths {
	switch kind {
	case BackendDocker, BackendPodman:
		return MountPaths{
			Input:  "/input",
			Output: "/home/" + user + "/output",
			MSDir:  "/home/" + user + "/msdir",
		}
	default:
		return MountPaths{
			Input:  "/scratch/input",
			Output: "/scratch/output",
			MSDir:  "/scratch/msdir",
		}
	}
}

// Volume is a host directory or file mapped into a backend's filesystem.
type Volume struct {
	Host      string
	Container string
	Perm      string // "ro" or "rw"
}

// Adapter is the capability contract every execution backend implements.
// A failure during Create or Start must surface as a RuntimeError so the
// recipe can react uniformly regardless of backend.
type Adapter interface {
	Create(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Remove(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error

	AddVolume(host, container, perm string)
	AddEnv(key, value string)

	Kind() BackendKind
	Image() string
	Volumes() []Volume
	Environment() map[string]string
	LogFile() string
}
