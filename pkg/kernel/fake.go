package kernel

import (
	"os"
	"sync"
	"syscall"
)

// Call records a single kernel operation performed against Fake.
type Call struct {
	Op     string
	Source string
	Target string
	FsType string
	Flags  uintptr
	Data   string
}

// Fake is a recording Ops implementation for tests. Operations succeed
// unless an error is installed for them via Fail.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
	alive map[int]bool
}

// NewFake creates an empty recording Ops. No process is alive until
// SetAlive marks one so.
func NewFake() *Fake {
	return &Fake{fail: make(map[string]error), alive: make(map[int]bool)}
}

// SetAlive marks pid as an existing process for Alive.
func (f *Fake) SetAlive(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = true
}

// Fail makes every subsequent operation named op return err.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Calls returns a copy of the recorded operations in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := make([]Call, len(f.calls))
	copy(c, f.calls)
	return c
}

// CallsOf returns recorded operations with the given name.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.fail[c.Op]
}

func (f *Fake) Mount(source, target, fstype string, flags uintptr, data string) error {
	return f.record(Call{Op: "mount", Source: source, Target: target, FsType: fstype, Flags: flags, Data: data})
}

func (f *Fake) Unmount(target string, flags int) error {
	return f.record(Call{Op: "unmount", Target: target, Flags: uintptr(flags)})
}

func (f *Fake) PivotRoot(newRoot, putOld string) error {
	return f.record(Call{Op: "pivot_root", Source: newRoot, Target: putOld})
}

func (f *Fake) Sethostname(name string) error {
	return f.record(Call{Op: "sethostname", Target: name})
}

func (f *Fake) Mknod(path string, mode uint32, dev int) error {
	return f.record(Call{Op: "mknod", Target: path, Flags: uintptr(mode)})
}

func (f *Fake) Symlink(oldname, newname string) error {
	return f.record(Call{Op: "symlink", Source: oldname, Target: newname})
}

func (f *Fake) Chdir(dir string) error {
	return f.record(Call{Op: "chdir", Target: dir})
}

// Kill records the signal and marks the pid dead, so a later Alive
// observes the termination. Signal 0 only probes.
func (f *Fake) Kill(pid int, sig os.Signal) error {
	if err := f.record(Call{Op: "kill", Target: sig.String(), Flags: uintptr(pid)}); err != nil {
		return err
	}
	if s, ok := sig.(syscall.Signal); !ok || s != 0 {
		f.mu.Lock()
		delete(f.alive, pid)
		f.mu.Unlock()
	}
	return nil
}

func (f *Fake) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "alive", Flags: uintptr(pid)})
	return f.alive[pid]
}
