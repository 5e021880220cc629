package cgroup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aropet/bantubox/errdefs"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder("bantubox").WithCPU().WithMemory()
	b.BasePath = t.TempDir()
	// control files normally created by the kernel
	for _, ctl := range []string{"cpu", "memory"} {
		if err := os.MkdirAll(filepath.Join(b.BasePath, ctl), 0755); err != nil {
			t.Fatalf("setup %s: %v", ctl, err)
		}
	}
	return b
}

func TestBuildCreatesSubGroups(t *testing.T) {
	b := testBuilder(t)
	cg, err := b.Build("deadbeef")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, ctl := range []string{"cpu", "memory"} {
		p := filepath.Join(b.BasePath, ctl, "bantubox", "deadbeef")
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Errorf("expected sub-group directory %s", p)
		}
		if cg.Path(ctl) != p {
			t.Errorf("Path(%s) = %q, want %q", ctl, cg.Path(ctl), p)
		}
	}
}

func TestBuildSharedPrefixIdempotent(t *testing.T) {
	b := testBuilder(t)
	cg1, err := b.Build("one")
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	cg2, err := b.Build("two")
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if cg1.Path("cpu") == cg2.Path("cpu") {
		t.Errorf("containers share a cpu sub-group: %s", cg1.Path("cpu"))
	}
	// destroying one container leaves the shared prefix and the other
	if err := cg1.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(cg2.Path("cpu")); err != nil {
		t.Errorf("sibling sub-group removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.BasePath, "cpu", "bantubox")); err != nil {
		t.Errorf("shared prefix removed: %v", err)
	}
}

func TestAddProcAndLimits(t *testing.T) {
	b := testBuilder(t)
	cg, err := b.Build("deadbeef")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := cg.AddProc(1234); err != nil {
		t.Fatalf("AddProc: %v", err)
	}
	if err := cg.SetCPUShares(512); err != nil {
		t.Fatalf("SetCPUShares: %v", err)
	}
	if err := cg.SetMemoryLimitInBytes(1 << 20); err != nil {
		t.Fatalf("SetMemoryLimitInBytes: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(cg.Path("cpu"), "cgroup.procs"))
	if err != nil || string(got) != "1234" {
		t.Errorf("cgroup.procs = %q, %v", got, err)
	}
	shares, err := cg.cpu.ReadUint("cpu.shares")
	if err != nil || shares != 512 {
		t.Errorf("cpu.shares = %d, %v", shares, err)
	}
	limit, err := cg.memory.ReadUint("memory.limit_in_bytes")
	if err != nil || limit != 1<<20 {
		t.Errorf("memory.limit_in_bytes = %d, %v", limit, err)
	}

	pids, err := cg.Procs()
	if err != nil {
		t.Fatalf("Procs: %v", err)
	}
	if len(pids) != 1 || pids[0] != 1234 {
		t.Errorf("Procs = %v, want [1234]", pids)
	}
}

func TestDestroyRemovesSubGroups(t *testing.T) {
	b := testBuilder(t)
	cg, err := b.Build("deadbeef")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := cg.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	for _, ctl := range []string{"cpu", "memory"} {
		if _, err := os.Stat(cg.Path(ctl)); !os.IsNotExist(err) {
			t.Errorf("sub-group %s not removed", ctl)
		}
	}
	// destroying twice is fine
	if err := cg.Destroy(); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
}

func TestBuildFailureCleansUp(t *testing.T) {
	b := testBuilder(t)
	// memory controller missing and unwritable parent makes the second
	// createSubGroup fail after cpu succeeded
	if err := os.RemoveAll(filepath.Join(b.BasePath, "memory")); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(b.BasePath, 0500); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(b.BasePath, 0755)

	_, err := b.Build("deadbeef")
	if err == nil {
		t.Skip("running with privilege that ignores directory modes")
	}
	if !errors.Is(err, errdefs.ErrCgroup) && !errors.Is(err, errdefs.ErrPrivilege) {
		t.Errorf("unexpected error kind: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(b.BasePath, "cpu", "bantubox", "deadbeef")); !os.IsNotExist(statErr) {
		t.Errorf("cpu sub-group not cleaned up after failed build")
	}
}

func TestWriteUintDisabledSubGroup(t *testing.T) {
	s := NewSubCgroup("")
	if err := s.WriteUint("cpu.shares", 1); err != nil {
		t.Errorf("disabled sub-group write: %v", err)
	}
	pids, err := s.ReadProcs("cgroup.procs")
	if err != nil || pids != nil {
		t.Errorf("disabled sub-group ReadProcs = %v, %v", pids, err)
	}
}
