package cgroup

import (
	"errors"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"
)

const filePerm = 0644

// SubCgroup is one controller's sub-group directory.
type SubCgroup struct {
	path string
}

// NewSubCgroup creates a SubCgroup for the given directory. An empty
// path yields a disabled sub-group whose writes are no-ops.
func NewSubCgroup(p string) *SubCgroup {
	return &SubCgroup{path: p}
}

// WriteUint writes a uint64 into the given control file.
func (c *SubCgroup) WriteUint(filename string, i uint64) error {
	if c.path == "" {
		return nil
	}
	return c.WriteFile(filename, []byte(strconv.FormatUint(i, 10)))
}

// ReadUint reads a uint64 from the given control file.
func (c *SubCgroup) ReadUint(filename string) (uint64, error) {
	b, err := c.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

// ReadProcs reads a newline separated pid list from the given file.
func (c *SubCgroup) ReadProcs(filename string) ([]int, error) {
	if c.path == "" {
		return nil, nil
	}
	b, err := c.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// WriteFile writes content into the given control file, retrying EINTR.
func (c *SubCgroup) WriteFile(filename string, content []byte) error {
	if c.path == "" {
		return nil
	}
	p := path.Join(c.path, filename)
	err := os.WriteFile(p, content, filePerm)
	for err != nil && errors.Is(err, syscall.EINTR) {
		err = os.WriteFile(p, content, filePerm)
	}
	return err
}

// ReadFile reads the given control file, retrying EINTR.
func (c *SubCgroup) ReadFile(filename string) ([]byte, error) {
	if c.path == "" {
		return nil, nil
	}
	p := path.Join(c.path, filename)
	data, err := os.ReadFile(p)
	for err != nil && errors.Is(err, syscall.EINTR) {
		data, err = os.ReadFile(p)
	}
	return data, err
}
