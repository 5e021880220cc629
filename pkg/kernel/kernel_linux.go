package kernel

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

type native struct{}

// Native returns the Ops implementation backed by the host kernel.
func Native() Ops {
	return native{}
}

func (native) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (native) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

func (native) PivotRoot(newRoot, putOld string) error {
	return unix.PivotRoot(newRoot, putOld)
}

func (native) Sethostname(name string) error {
	return unix.Sethostname([]byte(name))
}

func (native) Mknod(path string, mode uint32, dev int) error {
	return unix.Mknod(path, mode, dev)
}

func (native) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

func (native) Chdir(dir string) error {
	return unix.Chdir(dir)
}

func (native) Kill(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = syscall.SIGTERM
	}
	return unix.Kill(pid, s)
}

func (native) Alive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
