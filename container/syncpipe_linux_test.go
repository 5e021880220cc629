package container

import (
	"errors"
	"testing"
	"time"

	"github.com/aropet/bantubox/errdefs"
	"github.com/aropet/bantubox/pkg/overlay"
)

func newTestPipes(t *testing.T) (*syncPipe, *childSyncPipe) {
	t.Helper()
	p, err := newSyncPipe()
	if err != nil {
		t.Fatalf("newSyncPipe: %v", err)
	}
	child := newChildSyncPipeFile(p.ChildFile())
	t.Cleanup(func() {
		p.parent.Close()
		child.Close()
	})
	return p, child
}

func TestSendConfigRoundTrip(t *testing.T) {
	p, child := newTestPipes(t)
	want := initConfig{
		ID:           "cafebabe",
		Image:        "base",
		ImageDir:     "/bantubox/images",
		ContainerDir: "/bantubox/containers",
		Layout:       overlay.NewLayout("/bantubox/containers", "cafebabe"),
		Command:      []string{"/bin/echo", "hello"},
	}
	if err := p.SendConfig(want); err != nil {
		t.Fatalf("SendConfig: %v", err)
	}
	got, err := child.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if got.ID != want.ID || got.Layout.Merged != want.Layout.Merged {
		t.Errorf("ReadConfig = %+v, want %+v", got, want)
	}
	if len(got.Command) != 2 || got.Command[0] != "/bin/echo" {
		t.Errorf("Command = %v", got.Command)
	}
}

func TestReleaseAfterConfig(t *testing.T) {
	p, child := newTestPipes(t)
	if err := p.SendConfig(initConfig{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := child.ReadConfig(); err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if err := child.AwaitRelease(time.Second); err != nil {
		t.Fatalf("AwaitRelease: %v", err)
	}
}

func TestAwaitReleaseTimesOut(t *testing.T) {
	p, child := newTestPipes(t)
	if err := p.SendConfig(initConfig{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := child.ReadConfig(); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err := child.AwaitRelease(200 * time.Millisecond)
	if !errors.Is(err, errdefs.ErrNamespace) {
		t.Fatalf("expected ErrNamespace timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("AwaitRelease blocked %v, bound not honored", elapsed)
	}
}

func TestAwaitReleaseBrokenPipe(t *testing.T) {
	p, child := newTestPipes(t)
	if err := p.SendConfig(initConfig{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := child.ReadConfig(); err != nil {
		t.Fatal(err)
	}
	// parent goes away without releasing
	p.parent.Close()

	if err := child.AwaitRelease(time.Second); !errors.Is(err, errdefs.ErrNamespace) {
		t.Fatalf("expected ErrNamespace on broken pipe, got %v", err)
	}
}
