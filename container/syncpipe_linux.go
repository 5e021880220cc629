package container

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aropet/bantubox/errdefs"
	"github.com/aropet/bantubox/pkg/overlay"
)

// syncPipeFd is where the child finds its end of the handshake
// socketpair (first ExtraFiles slot after stdio).
const syncPipeFd = 3

// handshakeTimeout bounds how long the child waits for the parent to
// finish cgroup attachment. A missing release signal within the bound
// is an error, never an infinite block.
const handshakeTimeout = 10 * time.Second

// initConfig is the message the parent sends to the child right after
// spawn: everything the init process needs before exec.
type initConfig struct {
	ID           string         `json:"id"`
	Image        string         `json:"image"`
	ImageDir     string         `json:"imageDir"`
	ContainerDir string         `json:"containerDir"`
	Layout       overlay.Layout `json:"layout"`
	Command      []string       `json:"command"`
	Env          []string       `json:"env,omitempty"`
}

const releaseToken = "run"

// syncPipe is the parent half of the handshake socketpair.
type syncPipe struct {
	parent, child *os.File
	enc           *json.Encoder
}

func newSyncPipe() (*syncPipe, error) {
	fds, err := unix.Socketpair(unix.AF_LOCAL, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("container: failed to create sync pipe: %w", err)
	}
	// non-blocking so both ends are pollable and support deadlines
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	parent := os.NewFile(uintptr(fds[0]), "syncpipe-parent")
	child := os.NewFile(uintptr(fds[1]), "syncpipe-child")
	return &syncPipe{parent: parent, child: child, enc: json.NewEncoder(parent)}, nil
}

// ChildFile returns the file handed to the child via ExtraFiles.
func (p *syncPipe) ChildFile() *os.File {
	return p.child
}

// CloseChild drops the parent's reference to the child end once the
// child holds it.
func (p *syncPipe) CloseChild() error {
	return p.child.Close()
}

// SendConfig ships the init configuration to the child.
func (p *syncPipe) SendConfig(cfg initConfig) error {
	if err := p.enc.Encode(cfg); err != nil {
		return fmt.Errorf("container: failed to send init config: %w", err)
	}
	return nil
}

// Release signals the child that cgroup attachment is complete and it
// may exec the target command.
func (p *syncPipe) Release() error {
	if err := p.enc.Encode(releaseToken); err != nil {
		return fmt.Errorf("container: failed to release child: %w", err)
	}
	return nil
}

// Close closes both ends.
func (p *syncPipe) Close() error {
	p.child.Close()
	return p.parent.Close()
}

// childSyncPipe is the child half, recovered from syncPipeFd after the
// re-exec.
type childSyncPipe struct {
	f   *os.File
	dec *json.Decoder
}

func newChildSyncPipe() *childSyncPipe {
	return newChildSyncPipeFile(os.NewFile(uintptr(syncPipeFd), "syncpipe"))
}

func newChildSyncPipeFile(f *os.File) *childSyncPipe {
	return &childSyncPipe{f: f, dec: json.NewDecoder(f)}
}

// ReadConfig blocks until the parent's init configuration arrives.
func (p *childSyncPipe) ReadConfig() (initConfig, error) {
	var cfg initConfig
	if err := p.dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("container: failed to read init config: %w", err)
	}
	return cfg, nil
}

// AwaitRelease blocks until the parent signals that the child may
// exec, or the timeout elapses.
func (p *childSyncPipe) AwaitRelease(timeout time.Duration) error {
	if err := p.f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return errdefs.Wrap(errdefs.ErrNamespace, err, "container: failed to arm handshake deadline")
	}
	defer p.f.SetReadDeadline(time.Time{})

	var token string
	if err := p.dec.Decode(&token); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return errdefs.Wrapf(errdefs.ErrNamespace, err, "container: no release signal within %v", timeout)
		}
		return errdefs.Wrap(errdefs.ErrNamespace, err, "container: handshake broken")
	}
	if token != releaseToken {
		return errdefs.Wrapf(errdefs.ErrNamespace, nil, "container: unexpected handshake token %q", token)
	}
	return nil
}

// Close closes the child end.
func (p *childSyncPipe) Close() error {
	return p.f.Close()
}
