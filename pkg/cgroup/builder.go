// Package cgroup places container processes under cgroup v1 resource
// limits. Each container gets its own sub-group per controller under a
// shared top-level group, created idempotently and removed with the
// container.
package cgroup

import (
	"fmt"
	"strings"
)

const basePath = "/sys/fs/cgroup"

// Builder builds per-container cgroup directories.
// available controllers: cpu, memory
type Builder struct {
	// BasePath is the cgroup filesystem mount point, /sys/fs/cgroup
	// when empty. Overridable for tests.
	BasePath string
	// Prefix is the shared top-level group all containers live under.
	Prefix string

	CPU    bool
	Memory bool
}

// NewBuilder returns a builder without any controller for the given
// shared prefix.
func NewBuilder(prefix string) *Builder {
	return &Builder{Prefix: prefix}
}

// WithCPU includes the cpu controller.
func (b *Builder) WithCPU() *Builder {
	b.CPU = true
	return b
}

// WithMemory includes the memory controller.
func (b *Builder) WithMemory() *Builder {
	b.Memory = true
	return b
}

func (b *Builder) base() string {
	if b.BasePath == "" {
		return basePath
	}
	return b.BasePath
}

// String prints the build properties
func (b *Builder) String() string {
	s := make([]string, 0, 2)
	for _, t := range []struct {
		name    string
		enabled bool
	}{
		{"cpu", b.CPU},
		{"memory", b.Memory},
	} {
		if t.enabled {
			s = append(s, t.name)
		}
	}
	return fmt.Sprintf("cgroup builder: [%s]", strings.Join(s, ", "))
}
