package container

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateCreated, "Created"},
		{StateFilesystemReady, "FilesystemReady"},
		{StateNamespacesReady, "NamespacesReady"},
		{StateNetworkReady, "NetworkReady"},
		{StateCgroupApplied, "CgroupApplied"},
		{StateRunning, "Running"},
		{StateExited, "Exited"},
		{StateCleaned, "Cleaned"},
		{State(99), "State(99)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestAdvanceForwardOnly(t *testing.T) {
	c := &Container{}
	if c.State() != StateCreated {
		t.Fatalf("initial state = %v", c.State())
	}
	for _, s := range []State{
		StateFilesystemReady,
		StateNamespacesReady,
		StateNetworkReady,
		StateCgroupApplied,
		StateRunning,
		StateExited,
		StateCleaned,
	} {
		if err := c.advance(s); err != nil {
			t.Fatalf("advance(%v): %v", s, err)
		}
		if c.State() != s {
			t.Fatalf("state = %v, want %v", c.State(), s)
		}
	}
}

func TestAdvanceSkipsStages(t *testing.T) {
	// a failure path jumps straight to Cleaned
	c := &Container{}
	if err := c.advance(StateFilesystemReady); err != nil {
		t.Fatal(err)
	}
	if err := c.advance(StateCleaned); err != nil {
		t.Errorf("advance to Cleaned: %v", err)
	}
}

func TestMarkRunningSetsPid(t *testing.T) {
	c := &Container{ID: "cafebabe"}
	for _, s := range []State{
		StateFilesystemReady,
		StateNamespacesReady,
		StateNetworkReady,
		StateCgroupApplied,
	} {
		if err := c.advance(s); err != nil {
			t.Fatalf("advance(%v): %v", s, err)
		}
		if c.Pid != 0 {
			t.Fatalf("pid set at %v", s)
		}
	}
	if err := c.markRunning(4242); err != nil {
		t.Fatalf("markRunning: %v", err)
	}
	if c.State() != StateRunning || c.Pid != 4242 {
		t.Errorf("state = %v pid = %d, want Running 4242", c.State(), c.Pid)
	}
}

func TestAdvanceRejectsBackwards(t *testing.T) {
	c := &Container{}
	if err := c.advance(StateRunning); err != nil {
		t.Fatal(err)
	}
	if err := c.advance(StateRunning); err == nil {
		t.Errorf("expected error on no-op transition")
	}
	if err := c.advance(StateFilesystemReady); err == nil {
		t.Errorf("expected error on backwards transition")
	}
	if c.State() != StateRunning {
		t.Errorf("state mutated on rejected transition: %v", c.State())
	}
}
