package overlay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/aropet/bantubox/pkg/kernel"
)

// jailMounts is the auxiliary filesystem set mounted inside the new
// root after pivot, relative to /.
func jailMounts() []Mount {
	return []Mount{
		{Source: "proc", Target: "/proc", FsType: "proc"},
		{Source: "sysfs", Target: "/sys", FsType: "sysfs"},
		{Source: "tmpfs", Target: "/dev", FsType: "tmpfs",
			Flags: unix.MS_NOSUID | unix.MS_STRICTATIME, Data: "mode=755"},
		{Source: "devpts", Target: "/dev/pts", FsType: "devpts"},
	}
}

// devNodes are the device files created in the container's /dev.
var devNodes = []struct {
	name         string
	major, minor uint32
}{
	{"null", 1, 3},
	{"zero", 1, 5},
	{"random", 1, 8},
	{"urandom", 1, 9},
	{"console", 136, 1},
	{"tty", 5, 0},
	{"full", 1, 7},
}

// Enter swaps the calling process's root to the merged overlay view.
// It must run inside the container's new mount namespace, after
// Prepare and before exec. On return no reference to the host
// filesystem remains reachable from the container root.
func (j *Jail) Enter() error {
	// keep later mounts from propagating back to the host
	if err := j.ops.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return wrapMountErr(err, "overlay: failed to make mounts private")
	}

	if err := j.ops.Chdir(j.layout.Merged); err != nil {
		return wrapMountErr(err, "overlay: failed to enter "+j.layout.Merged)
	}
	putOld := filepath.Join(j.layout.Merged, PutOld)
	if err := os.MkdirAll(putOld, dirPerm); err != nil {
		return wrapMountErr(err, "overlay: failed to create "+putOld)
	}
	if err := j.ops.PivotRoot(j.layout.Merged, putOld); err != nil {
		return wrapMountErr(err, "overlay: pivot_root failed")
	}
	if err := j.ops.Chdir("/"); err != nil {
		return wrapMountErr(err, "overlay: failed to chdir to new root")
	}

	for _, m := range jailMounts() {
		if err := os.MkdirAll(m.Target, dirPerm); err != nil {
			return wrapMountErr(err, "overlay: failed to create "+m.Target)
		}
		if err := j.ops.Mount(m.Source, m.Target, m.FsType, m.Flags, m.Data); err != nil {
			return wrapMountErr(err, fmt.Sprintf("overlay: failed to mount %v", m))
		}
	}
	if err := j.makeDev("/dev"); err != nil {
		return err
	}

	// drop the old root so the host tree is unreachable
	oldRoot := "/" + PutOld
	if err := j.ops.Unmount(oldRoot, kernel.Detach); err != nil {
		return wrapMountErr(err, "overlay: failed to unmount old root")
	}
	if err := os.Remove(oldRoot); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrapMountErr(err, "overlay: failed to remove old root")
	}
	return nil
}

// makeDev populates the container /dev with stdio symlinks and the
// standard character devices.
func (j *Jail) makeDev(devPath string) error {
	for i, name := range []string{"stdin", "stdout", "stderr"} {
		link := filepath.Join(devPath, name)
		fd := filepath.Join("/proc/self/fd", fmt.Sprint(i))
		if err := j.ops.Symlink(fd, link); err != nil && !errors.Is(err, os.ErrExist) {
			return wrapMountErr(err, "overlay: failed to link "+link)
		}
	}
	for _, d := range devNodes {
		p := filepath.Join(devPath, d.name)
		dev := int(unix.Mkdev(d.major, d.minor))
		if err := j.ops.Mknod(p, unix.S_IFCHR|0666, dev); err != nil && !errors.Is(err, os.ErrExist) && !errors.Is(err, unix.EEXIST) {
			return wrapMountErr(err, "overlay: failed to create device "+p)
		}
	}
	return nil
}
