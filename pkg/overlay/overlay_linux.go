package overlay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/aropet/bantubox/errdefs"
	"github.com/aropet/bantubox/pkg/kernel"
)

const dirPerm = 0755

// Jail materializes a container root filesystem from an image and
// performs the pivot into it.
type Jail struct {
	ops    kernel.Ops
	layout Layout
	image  string

	imageDir     string
	containerDir string
}

// New creates a jail builder for the given image and container id.
func New(ops kernel.Ops, imageDir, containerDir, image, id string) *Jail {
	return &Jail{
		ops:          ops,
		layout:       NewLayout(containerDir, id),
		image:        image,
		imageDir:     imageDir,
		containerDir: containerDir,
	}
}

// Layout returns the jail's layer directories.
func (j *Jail) Layout() Layout {
	return j.layout
}

// ImagePath returns the host path of the base image tree.
func (j *Jail) ImagePath() string {
	return filepath.Join(j.imageDir, j.image)
}

// Prepare creates the layer directories and mounts the overlay at the
// merged directory. It runs on the host, before any process is spawned.
func (j *Jail) Prepare() error {
	imagePath := j.ImagePath()
	if fi, err := os.Stat(imagePath); err != nil || !fi.IsDir() {
		return errdefs.Wrapf(errdefs.ErrImageNotFound, err, "overlay: no image %q under %s", j.image, j.imageDir)
	}

	for _, d := range []string{j.layout.Upper, j.layout.Work, j.layout.Merged} {
		if err := os.MkdirAll(d, dirPerm); err != nil {
			return errdefs.Wrapf(errdefs.ErrMount, err, "overlay: failed to create layer directory %s", d)
		}
	}
	if err := j.ops.Symlink(imagePath, j.layout.Lower); err != nil && !errors.Is(err, os.ErrExist) {
		return errdefs.Wrapf(errdefs.ErrMount, err, "overlay: failed to link lower layer %s", j.layout.Lower)
	}

	data := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		j.layout.Lower, j.layout.Upper, j.layout.Work)
	if err := j.ops.Mount("overlay", j.layout.Merged, "overlay", unix.MS_NODEV, data); err != nil {
		return wrapMountErr(err, "overlay: failed to mount overlay at "+j.layout.Merged)
	}
	return nil
}

// Teardown unmounts the overlay and removes the per-container layer
// directories. Unmounting an already-unmounted target is success, so
// Teardown is safe to call after a partial Prepare.
func (j *Jail) Teardown() error {
	err := j.ops.Unmount(j.layout.Merged, 0)
	switch {
	case err == nil:
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOENT):
		// not mounted (or never created)
	case errors.Is(err, unix.EBUSY):
		if err := j.ops.Unmount(j.layout.Merged, kernel.Detach); err != nil {
			return errdefs.Wrapf(errdefs.ErrMount, err, "overlay: failed to detach %s", j.layout.Merged)
		}
	default:
		return errdefs.Wrapf(errdefs.ErrMount, err, "overlay: failed to unmount %s", j.layout.Merged)
	}

	if err := os.RemoveAll(j.layout.Root()); err != nil {
		return fmt.Errorf("overlay: failed to remove %s: %w", j.layout.Root(), err)
	}
	return nil
}

func wrapMountErr(err error, msg string) error {
	kind := errdefs.ErrMount
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		kind = errdefs.ErrPrivilege
	}
	return errdefs.Wrap(kind, err, msg)
}
