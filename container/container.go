package container

import (
	"fmt"
	"time"

	"github.com/aropet/bantubox/pkg/overlay"
)

// State is a container lifecycle stage. Transitions are strictly
// forward; any failure jumps to the teardown path which unwinds the
// completed stages in reverse and ends in StateCleaned.
type State int

// Lifecycle stages in order.
const (
	StateCreated State = iota
	StateFilesystemReady
	StateNamespacesReady
	StateNetworkReady
	StateCgroupApplied
	StateRunning
	StateExited
	StateCleaned
)

var stateString = []string{
	"Created",
	"FilesystemReady",
	"NamespacesReady",
	"NetworkReady",
	"CgroupApplied",
	"Running",
	"Exited",
	"Cleaned",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateString) {
		return stateString[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Container is the unit of isolation tracked by the supervisor.
type Container struct {
	ID      string
	Image   string
	Command []string

	// Layout holds the overlay layer directories under the
	// per-container directory named by ID.
	Layout overlay.Layout

	// Pid of the init process, set once the container reached
	// StateRunning.
	Pid int

	// CgroupPaths are the per-controller sub-group directories, set
	// once the cgroup stage completed.
	CgroupPaths map[string]string

	CreatedAt time.Time

	state State
}

// State returns the current lifecycle stage.
func (c *Container) State() State {
	return c.state
}

// advance moves the container to a later stage. Moving backwards or
// standing still is a programming error and rejected.
func (c *Container) advance(to State) error {
	if to <= c.state {
		return fmt.Errorf("container: invalid state transition %v -> %v", c.state, to)
	}
	c.state = to
	return nil
}

// markRunning records the init pid together with the Running advance.
// Pid stays zero in every earlier stage, so a persisted record names a
// pid only for a container whose command was released.
func (c *Container) markRunning(pid int) error {
	if err := c.advance(StateRunning); err != nil {
		return err
	}
	c.Pid = pid
	return nil
}
