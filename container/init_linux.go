package container

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/aropet/bantubox/errdefs"
	"github.com/aropet/bantubox/pkg/kernel"
	"github.com/aropet/bantubox/pkg/network"
	"github.com/aropet/bantubox/pkg/overlay"
)

// Init is the entry point of the container init process, invoked as
// "/proc/self/exe init" inside freshly created namespaces. It runs the
// staged child-side setup and execs the target command, so it only
// returns on error.
//
// Each stage is a named step with its own failure path: hostname,
// filesystem entry, network, handshake wait, exec.
func Init() error {
	pipe := newChildSyncPipe()
	defer pipe.Close()

	cfg, err := pipe.ReadConfig()
	if err != nil {
		return err
	}
	ops := kernel.Native()

	if err := setupHostname(ops, cfg); err != nil {
		return err
	}
	if err := setupRootfs(ops, cfg); err != nil {
		return err
	}
	if err := setupLoopback(cfg); err != nil {
		return err
	}

	// block until the parent finished cgroup attachment, so limits
	// apply from the target command's first instruction
	if err := pipe.AwaitRelease(handshakeTimeout); err != nil {
		return err
	}
	pipe.Close()

	return execCommand(cfg)
}

// setupHostname names the UTS namespace after the container id.
func setupHostname(ops kernel.Ops, cfg initConfig) error {
	if err := ops.Sethostname(cfg.ID); err != nil {
		return errdefs.Wrap(errdefs.ErrNamespace, err, "container: failed to set hostname")
	}
	return nil
}

// setupRootfs pivots into the prepared overlay view.
func setupRootfs(ops kernel.Ops, cfg initConfig) error {
	jail := overlay.New(ops, cfg.ImageDir, cfg.ContainerDir, cfg.Image, cfg.ID)
	return jail.Enter()
}

// setupLoopback brings lo up. A network-setup failure is a warning;
// anything else aborts.
func setupLoopback(cfg initConfig) error {
	if err := network.NewSetup().Loopback(); err != nil {
		if errdefs.IsFatal(err) {
			return err
		}
		logrus.WithField("container", cfg.ID).Warnf("continuing without loopback: %v", err)
	}
	return nil
}

// execCommand replaces the init process with the target command. On
// lookup failure it exits with the conventional shell codes so the
// failure surfaces as the container's own exit status.
func execCommand(cfg initConfig) error {
	if len(cfg.Command) == 0 {
		return errdefs.Wrap(errdefs.ErrNamespace, nil, "container: empty command")
	}
	env := append([]string{PathEnv}, cfg.Env...)
	// LookPath resolves against the process environment
	os.Setenv("PATH", strings.TrimPrefix(PathEnv, "PATH="))

	name, err := exec.LookPath(cfg.Command[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bantubox: %s: command not found\n", cfg.Command[0])
		os.Exit(127)
	}
	if err := unix.Exec(name, cfg.Command, env); err != nil {
		fmt.Fprintf(os.Stderr, "bantubox: %s: %v\n", name, err)
		os.Exit(126)
	}
	return nil
}
