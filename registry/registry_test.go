package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aropet/bantubox/errdefs"
)

func openTest(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegisterLookup(t *testing.T) {
	r := openTest(t)
	rec := Record{
		ID:        "cafebabe",
		Image:     "base",
		Command:   []string{"/bin/echo", "hello"},
		Pid:       4242,
		State:     "Running",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		RootDir:   "/bantubox/containers/cafebabe",
		CgroupPaths: map[string]string{
			"cpu": "/sys/fs/cgroup/cpu/bantubox/cafebabe",
		},
	}
	require.NoError(t, r.Register(rec))

	got, err := r.Lookup("cafebabe")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestLookupUnknown(t *testing.T) {
	r := openTest(t)
	_, err := r.Lookup("nope")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRegisterOverwrites(t *testing.T) {
	r := openTest(t)
	rec := Record{ID: "cafebabe", State: "Created"}
	require.NoError(t, r.Register(rec))
	rec.State = "Running"
	rec.Pid = 99
	require.NoError(t, r.Register(rec))

	got, err := r.Lookup("cafebabe")
	require.NoError(t, err)
	assert.Equal(t, "Running", got.State)
	assert.Equal(t, 99, got.Pid)
}

func TestRemove(t *testing.T) {
	r := openTest(t)
	require.NoError(t, r.Register(Record{ID: "cafebabe"}))
	require.NoError(t, r.Remove("cafebabe"))
	_, err := r.Lookup("cafebabe")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	// removing an unknown id is not an error
	assert.NoError(t, r.Remove("cafebabe"))
}

func TestList(t *testing.T) {
	r := openTest(t)
	assert.Empty(t, mustList(t, r))

	require.NoError(t, r.Register(Record{ID: "bbb", Image: "base"}))
	require.NoError(t, r.Register(Record{ID: "aaa", Image: "alpine"}))

	recs := mustList(t, r)
	require.Len(t, recs, 2)
	assert.Equal(t, "aaa", recs[0].ID)
	assert.Equal(t, "bbb", recs[1].ID)
}

func mustList(t *testing.T, r *Registry) []Record {
	t.Helper()
	recs, err := r.List()
	require.NoError(t, err)
	return recs
}
