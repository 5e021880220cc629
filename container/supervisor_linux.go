package container

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/aropet/bantubox/errdefs"
	"github.com/aropet/bantubox/pkg/cgroup"
	"github.com/aropet/bantubox/pkg/kernel"
	"github.com/aropet/bantubox/pkg/overlay"
	"github.com/aropet/bantubox/registry"
)

// CgroupPrefix is the shared top-level group all containers live
// under, created once and reused.
const CgroupPrefix = "bantubox"

// cloneFlags requests all container namespaces at process creation:
// PID and mount namespaces cannot be retrofitted into a running
// multithreaded process.
const cloneFlags = unix.CLONE_NEWNS |
	unix.CLONE_NEWUTS |
	unix.CLONE_NEWIPC |
	unix.CLONE_NEWPID |
	unix.CLONE_NEWNET

// Supervisor coordinates container lifecycles on the host side.
type Supervisor struct {
	// ImageDir holds the read-only base image trees.
	ImageDir string
	// ContainerDir holds the per-container overlay layers.
	ContainerDir string
	// RegistryPath is the container index database file.
	RegistryPath string

	// Ops is the kernel operation capability, kernel.Native() when nil.
	Ops kernel.Ops
}

// RunSpec describes one container run.
type RunSpec struct {
	Image   string
	Command []string

	// CPUShares is the cpu.shares relative weight, 0 leaves the
	// controller default.
	CPUShares uint64
	// MemoryLimit is memory.limit_in_bytes, 0 for unlimited.
	MemoryLimit uint64
	// MemorySwapLimit is memory.memsw.limit_in_bytes, 0 leaves it
	// unset.
	MemorySwapLimit uint64
}

func (s *Supervisor) ops() kernel.Ops {
	if s.Ops == nil {
		return kernel.Native()
	}
	return s.Ops
}

// Run creates and supervises one container from spec and returns the
// contained command's exit code. All stages that completed are undone
// in reverse before Run returns, on success and on failure alike; a
// child spawned during a failed setup is never left running.
func (s *Supervisor) Run(spec RunSpec) (int, error) {
	// namespace and mount creation needs root; fail before touching
	// anything
	if os.Geteuid() != 0 {
		return errdefs.SetupExitCode, errdefs.Wrap(errdefs.ErrPrivilege, nil,
			"container: creating namespaces requires root")
	}

	id := uuid.NewString()
	c := &Container{
		ID:        id,
		Image:     spec.Image,
		Command:   spec.Command,
		Layout:    overlay.NewLayout(s.ContainerDir, id),
		CreatedAt: time.Now().UTC(),
	}
	log := logrus.WithField("container", c.ID)
	log.WithField("command", spec.Command).Info("creating container")

	if err := s.saveRecord(c); err != nil {
		return errdefs.SetupExitCode, err
	}

	jail := overlay.New(s.ops(), s.ImageDir, s.ContainerDir, spec.Image, c.ID)

	return s.runStages(c, spec, jail, log)
}

// saveRecord persists the container's current record. The registry
// handle holds an exclusive file lock, so it is opened and closed per
// operation, never across a blocking wait; concurrent invocations
// only ever contend for the duration of one write.
func (s *Supervisor) saveRecord(c *Container) error {
	reg, err := registry.Open(s.RegistryPath)
	if err != nil {
		return err
	}
	defer reg.Close()
	return reg.Register(s.record(c))
}

func (s *Supervisor) removeRecord(id string) error {
	reg, err := registry.Open(s.RegistryPath)
	if err != nil {
		return err
	}
	defer reg.Close()
	return reg.Remove(id)
}

// runStages drives setup, wait and teardown. done tracks completed
// stages so the deferred unwind reverses exactly those.
func (s *Supervisor) runStages(c *Container, spec RunSpec, jail *overlay.Jail, log *logrus.Entry) (exitCode int, retErr error) {
	var (
		cg    *cgroup.Cgroup
		child *exec.Cmd
	)
	running := false

	defer func() {
		var result error
		if retErr != nil && child != nil && child.Process != nil && !running {
			// setup failed after spawn: the target command must not run
			child.Process.Kill()
			child.Wait()
		}
		if cg != nil {
			if err := cg.Destroy(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := jail.Teardown(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := s.removeRecord(c.ID); err != nil {
			result = multierror.Append(result, err)
		}
		c.advance(StateCleaned)
		if result != nil {
			if retErr != nil {
				// report unwind trouble alongside the original error
				retErr = multierror.Append(retErr, result)
			} else {
				retErr = result
			}
			if exitCode == 0 {
				exitCode = errdefs.SetupExitCode
			}
		}
		log.WithField("state", c.State()).Debug("container cleaned")
	}()

	// stage: filesystem
	if err := jail.Prepare(); err != nil {
		return errdefs.SetupExitCode, err
	}
	c.advance(StateFilesystemReady)
	if err := s.saveRecord(c); err != nil {
		return errdefs.SetupExitCode, err
	}

	// stage: namespaces (created with the child process itself)
	pipe, err := newSyncPipe()
	if err != nil {
		return errdefs.SetupExitCode, err
	}
	defer pipe.Close()

	child = exec.Command("/proc/self/exe", initArg)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.ExtraFiles = []*os.File{pipe.ChildFile()}
	child.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: cloneFlags,
	}
	if err := child.Start(); err != nil {
		kind := errdefs.ErrNamespace
		if errors.Is(err, unix.EPERM) {
			kind = errdefs.ErrPrivilege
		}
		child = nil
		return errdefs.SetupExitCode, errdefs.Wrap(kind, err, "container: failed to spawn init process")
	}
	pipe.CloseChild()
	// pid stays local until Running: a persisted record carries a pid
	// only for a container whose command was actually released
	pid := child.Process.Pid
	c.advance(StateNamespacesReady)
	log.WithField("pid", pid).Debug("init process spawned")

	if err := pipe.SendConfig(initConfig{
		ID:           c.ID,
		Image:        spec.Image,
		ImageDir:     s.ImageDir,
		ContainerDir: s.ContainerDir,
		Layout:       c.Layout,
		Command:      spec.Command,
	}); err != nil {
		return errdefs.SetupExitCode, err
	}
	// the child enters the jail and configures loopback on its own;
	// the parent's next ordering obligation is the cgroup
	c.advance(StateNetworkReady)

	// stage: cgroup, attached before the child may exec
	cg, err = s.applyCgroup(c.ID, pid, spec)
	if err != nil {
		return errdefs.SetupExitCode, err
	}
	c.CgroupPaths = cg.Paths()
	c.advance(StateCgroupApplied)
	if err := s.saveRecord(c); err != nil {
		return errdefs.SetupExitCode, err
	}

	// release the handshake: limits apply from the first instruction
	if err := pipe.Release(); err != nil {
		return errdefs.SetupExitCode, err
	}
	c.markRunning(pid)
	running = true
	if err := s.saveRecord(c); err != nil {
		// the command already runs; a stale record is not worth
		// killing it over
		log.WithError(err).Warn("failed to persist running state")
	}
	log.Info("container running")

	// stage: wait
	exitCode = 0
	err = child.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitCode()
	default:
		c.advance(StateExited)
		return errdefs.SetupExitCode, errdefs.Wrap(errdefs.ErrNamespace, err, "container: failed to wait for init process")
	}
	c.advance(StateExited)
	log.WithField("exit", exitCode).Info("container exited")
	return exitCode, nil
}

func (s *Supervisor) applyCgroup(id string, pid int, spec RunSpec) (*cgroup.Cgroup, error) {
	cg, err := cgroup.NewBuilder(CgroupPrefix).WithCPU().WithMemory().Build(id)
	if err != nil {
		return nil, err
	}
	// unwind a half-applied cgroup here; later failures are the
	// caller's to unwind
	if err := s.configureCgroup(cg, pid, spec); err != nil {
		cg.Destroy()
		return nil, err
	}
	return cg, nil
}

func (s *Supervisor) configureCgroup(cg *cgroup.Cgroup, pid int, spec RunSpec) error {
	if spec.CPUShares != 0 {
		if err := cg.SetCPUShares(spec.CPUShares); err != nil {
			return err
		}
	}
	if spec.MemoryLimit != 0 {
		if err := cg.SetMemoryLimitInBytes(spec.MemoryLimit); err != nil {
			return err
		}
	}
	if spec.MemorySwapLimit != 0 {
		if err := cg.SetMemorySwapLimitInBytes(spec.MemorySwapLimit); err != nil {
			return err
		}
	}
	return cg.AddProc(pid)
}

func (s *Supervisor) record(c *Container) registry.Record {
	return registry.Record{
		ID:          c.ID,
		Image:       c.Image,
		Command:     c.Command,
		Pid:         c.Pid,
		State:       c.State().String(),
		CreatedAt:   c.CreatedAt,
		RootDir:     c.Layout.Root(),
		CgroupPaths: c.CgroupPaths,
	}
}
