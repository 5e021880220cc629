package container

import (
	"errors"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/aropet/bantubox/errdefs"
	"github.com/aropet/bantubox/pkg/cgroup"
	"github.com/aropet/bantubox/pkg/overlay"
	"github.com/aropet/bantubox/registry"
)

// stopWait bounds how long Stop waits for the init process to honor
// SIGTERM before escalating to SIGKILL.
const stopWait = 10 * time.Second

// Stop terminates a running container and releases its resources. The
// registry is not held open while waiting for the process to exit.
func (s *Supervisor) Stop(id string) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	log := logrus.WithField("container", id)

	if rec.Pid != 0 && s.ops().Alive(rec.Pid) {
		if err := s.ops().Kill(rec.Pid, syscall.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			return errdefs.Wrapf(errdefs.ErrNamespace, err, "container: failed to signal pid %d", rec.Pid)
		}
		if !s.waitGone(rec.Pid, stopWait) {
			log.Warn("init did not exit on SIGTERM, killing")
			s.ops().Kill(rec.Pid, syscall.SIGKILL)
			s.waitGone(rec.Pid, stopWait)
		}
	}

	if err := s.release(rec); err != nil {
		return err
	}
	log.Info("container stopped")
	return nil
}

// Delete removes the remains of a container that is no longer running.
func (s *Supervisor) Delete(id string) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	if rec.Pid != 0 && s.ops().Alive(rec.Pid) {
		return errdefs.Wrapf(errdefs.ErrNamespace, nil, "container: %s is still running, stop it first", id)
	}
	if err := s.release(rec); err != nil {
		return err
	}
	logrus.WithField("container", id).Info("container deleted")
	return nil
}

// List returns the registry records of all known containers.
func (s *Supervisor) List() ([]registry.Record, error) {
	reg, err := registry.Open(s.RegistryPath)
	if err != nil {
		return nil, err
	}
	defer reg.Close()
	return reg.List()
}

func (s *Supervisor) lookup(id string) (registry.Record, error) {
	reg, err := registry.Open(s.RegistryPath)
	if err != nil {
		return registry.Record{}, err
	}
	defer reg.Close()
	return reg.Lookup(id)
}

// release unwinds a container's recorded resources in reverse setup
// order: cgroup, overlay, registry entry.
func (s *Supervisor) release(rec registry.Record) error {
	var result error
	if len(rec.CgroupPaths) > 0 {
		if err := cgroup.Load(rec.ID, rec.CgroupPaths).Destroy(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	jail := overlay.New(s.ops(), s.ImageDir, s.ContainerDir, rec.Image, rec.ID)
	if err := jail.Teardown(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.removeRecord(rec.ID); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

func (s *Supervisor) waitGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !s.ops().Alive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !s.ops().Alive(pid)
}
