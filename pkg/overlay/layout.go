// Package overlay builds and tears down the container's root
// filesystem view: an overlay mount combining a read-only image layer
// with a per-container writable layer, entered via pivot_root.
package overlay

import "path/filepath"

// PutOld is the directory inside the new root that briefly holds the
// old root during pivot_root.
const PutOld = ".put_old"

// Layout holds the overlay layer directories of one container, all
// rooted under the per-container directory named by its id.
type Layout struct {
	// Lower is a symlink to the read-only base image tree.
	Lower string
	// Upper is the container-private writable delta.
	Upper string
	// Work is the overlay work directory.
	Work string
	// Merged is the mount target presenting the combined view.
	Merged string
}

// NewLayout computes the layer directories for a container id under
// the given containers directory.
func NewLayout(containerDir, id string) Layout {
	root := filepath.Join(containerDir, id)
	return Layout{
		Lower:  filepath.Join(root, "lower"),
		Upper:  filepath.Join(root, "upper"),
		Work:   filepath.Join(root, "work"),
		Merged: filepath.Join(root, "merged"),
	}
}

// Root is the per-container directory holding all layers.
func (l Layout) Root() string {
	return filepath.Dir(l.Merged)
}
