package cgroup

import (
	"errors"
	"os"
	"path"

	"github.com/hashicorp/go-multierror"

	"github.com/aropet/bantubox/errdefs"
)

const (
	cgroupProcs = "cgroup.procs"
	dirPerm     = 0755
)

// Cgroup is the combination of one container's controller sub-groups.
type Cgroup struct {
	id string

	cpu    *SubCgroup
	memory *SubCgroup
}

// Build creates the sub-group directories for the given container id.
// The shared prefix group is created on first use; concurrent creators
// race benignly (first-creator-wins, the rest see it exists).
func (b *Builder) Build(id string) (cg *Cgroup, err error) {
	var cpuPath, memoryPath string
	// if failed, remove potentially created directories
	defer func() {
		if err != nil {
			remove(cpuPath)
			remove(memoryPath)
		}
	}()
	for _, c := range []struct {
		enable bool
		name   string
		path   *string
	}{
		{b.CPU, "cpu", &cpuPath},
		{b.Memory, "memory", &memoryPath},
	} {
		if !c.enable {
			continue
		}
		if *c.path, err = b.createSubGroup(c.name, id); err != nil {
			return nil, err
		}
	}
	return &Cgroup{
		id:     id,
		cpu:    NewSubCgroup(cpuPath),
		memory: NewSubCgroup(memoryPath),
	}, nil
}

// Load reconstructs a Cgroup from recorded sub-group paths, keyed by
// controller name. Unknown controllers are ignored.
func Load(id string, paths map[string]string) *Cgroup {
	return &Cgroup{
		id:     id,
		cpu:    NewSubCgroup(paths["cpu"]),
		memory: NewSubCgroup(paths["memory"]),
	}
}

// Paths returns the enabled sub-group paths keyed by controller name.
func (c *Cgroup) Paths() map[string]string {
	out := make(map[string]string)
	for _, p := range []struct {
		name string
		sub  *SubCgroup
	}{
		{"cpu", c.cpu},
		{"memory", c.memory},
	} {
		if p.sub.path != "" {
			out[p.name] = p.sub.path
		}
	}
	return out
}

// createSubGroup creates <base>/<controller>/<prefix>/<id>. The prefix
// level is shared between containers and never removed here.
func (b *Builder) createSubGroup(controller, id string) (string, error) {
	shared := path.Join(b.base(), controller, b.Prefix)
	if err := os.MkdirAll(shared, dirPerm); err != nil {
		return "", wrapCgroupErr(err, "cgroup: failed to ensure shared group "+shared)
	}
	p := path.Join(shared, id)
	if err := os.Mkdir(p, dirPerm); err != nil && !errors.Is(err, os.ErrExist) {
		return "", wrapCgroupErr(err, "cgroup: failed to create "+p)
	}
	return p, nil
}

// Path returns the sub-group path for the given controller, empty if
// the controller is not enabled.
func (c *Cgroup) Path(controller string) string {
	switch controller {
	case "cpu":
		return c.cpu.path
	case "memory":
		return c.memory.path
	}
	return ""
}

// AddProc writes the pid into cgroup.procs of all enabled sub-groups.
func (c *Cgroup) AddProc(pid int) error {
	for _, s := range []*SubCgroup{c.cpu, c.memory} {
		if err := s.WriteUint(cgroupProcs, uint64(pid)); err != nil {
			return wrapCgroupErr(err, "cgroup: failed to add pid to "+s.path)
		}
	}
	return nil
}

// SetCPUShares writes cpu.shares.
func (c *Cgroup) SetCPUShares(i uint64) error {
	if err := c.cpu.WriteUint("cpu.shares", i); err != nil {
		return wrapCgroupErr(err, "cgroup: failed to set cpu.shares")
	}
	return nil
}

// SetMemoryLimitInBytes writes memory.limit_in_bytes.
func (c *Cgroup) SetMemoryLimitInBytes(i uint64) error {
	if err := c.memory.WriteUint("memory.limit_in_bytes", i); err != nil {
		return wrapCgroupErr(err, "cgroup: failed to set memory limit")
	}
	return nil
}

// SetMemorySwapLimitInBytes writes memory.memsw.limit_in_bytes.
func (c *Cgroup) SetMemorySwapLimitInBytes(i uint64) error {
	if err := c.memory.WriteUint("memory.memsw.limit_in_bytes", i); err != nil {
		return wrapCgroupErr(err, "cgroup: failed to set memory+swap limit")
	}
	return nil
}

// Procs returns the pids currently in the container's sub-groups.
func (c *Cgroup) Procs() ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, s := range []*SubCgroup{c.cpu, c.memory} {
		pids, err := s.ReadProcs(cgroupProcs)
		if err != nil {
			return nil, err
		}
		for _, p := range pids {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// Destroy removes the container's sub-group directories. The kernel
// refuses removal while processes remain, which keeps the invariant
// that a populated cgroup is never destroyed. Errors are collected so
// one stuck controller does not hide the others.
func (c *Cgroup) Destroy() error {
	var result error
	for _, s := range []*SubCgroup{c.cpu, c.memory} {
		if err := remove(s.path); err != nil {
			result = multierror.Append(result, wrapCgroupErr(err, "cgroup: failed to remove "+s.path))
		}
	}
	return result
}

func remove(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(name)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func wrapCgroupErr(err error, msg string) error {
	kind := errdefs.ErrCgroup
	if errors.Is(err, os.ErrPermission) {
		kind = errdefs.ErrPrivilege
	}
	return errdefs.Wrap(kind, err, msg)
}
