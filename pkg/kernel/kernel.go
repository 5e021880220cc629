// Package kernel abstracts the raw kernel operations consumed by the
// container lifecycle engine (mount, umount, pivot_root, sethostname,
// device node creation) behind an interface, so that the lifecycle
// logic can be exercised against a recording fake without privilege.
package kernel

import "os"

// Ops is the kernel operation capability set. The native implementation
// binds to the host syscalls; tests substitute a fake.
type Ops interface {
	// Mount calls mount(2).
	Mount(source, target, fstype string, flags uintptr, data string) error
	// Unmount calls umount2(2) with the given flags.
	Unmount(target string, flags int) error
	// PivotRoot calls pivot_root(2).
	PivotRoot(newRoot, putOld string) error
	// Sethostname sets the hostname in the current UTS namespace.
	Sethostname(name string) error
	// Mknod creates a filesystem node (used for container /dev).
	Mknod(path string, mode uint32, dev int) error
	// Symlink creates a symbolic link.
	Symlink(oldname, newname string) error
	// Chdir changes the working directory of the calling process.
	Chdir(dir string) error
	// Kill sends a signal to a process.
	Kill(pid int, sig os.Signal) error
	// Alive reports whether a process with the given pid exists.
	Alive(pid int) bool
}

// Detach is the umount2 MNT_DETACH flag value, re-exported so that
// callers outside linux build scope can name it.
const Detach = 0x2
