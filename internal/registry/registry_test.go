package registry

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-platform/semverx/internal/semver"
)

func component(name, version, payload string, deps ...Dependency) Component {
	return Component{
		Name:         name,
		Version:      semver.MustParse(version),
		Payload:      []byte(payload),
		Dependencies: deps,
	}
}

func TestRegister_ComputesChecksumAndOwnsCopy(t *testing.T) {
	r := New()
	in := component("auth", "1.stable.0.stable.0.stable", "v1", Dependency{Target: "db", Constraint: "^1.0.0"})

	stored, err := r.Register(in)
	require.NoError(t, err)
	assert.Equal(t, Checksum([]byte("v1")), stored.Checksum)

	// Mutating the caller's slices must not reach the registry.
	in.Payload[0] = 'X'
	in.Dependencies[0].Target = "cache"

	got, err := r.Get("auth")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.Payload)
	assert.Equal(t, "db", got.Dependencies[0].Target)
	require.NoError(t, r.Verify("auth"))
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	_, err := r.Register(component("auth", "1.stable.0.stable.0.stable", "v1"))
	require.NoError(t, err)

	_, err = r.Register(component("auth", "1.stable.1.stable.0.stable", "v2"))
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegister_EmptyName(t *testing.T) {
	_, err := New().Register(Component{})
	require.ErrorIs(t, err, ErrInvalidComponent)
}

func TestGet_NotFound(t *testing.T) {
	_, err := New().Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := New()
	_, err := r.Register(component("auth", "1.stable.0.stable.0.stable", "v1"))
	require.NoError(t, err)

	got, err := r.Get("auth")
	require.NoError(t, err)
	got.Payload[0] = 'X'

	require.NoError(t, r.Verify("auth"))
}

func TestReplace(t *testing.T) {
	r := New()
	_, err := r.Register(component("auth", "1.stable.0.stable.0.stable", "v1"))
	require.NoError(t, err)

	next := component("auth", "1.stable.1.stable.0.stable", "v2")
	next.Checksum = Checksum(next.Payload)
	old, err := r.Replace("auth", next)
	require.NoError(t, err)
	assert.Equal(t, "1.stable.0.stable.0.stable", old.Version.String())

	got, err := r.Get("auth")
	require.NoError(t, err)
	assert.Equal(t, next.Version, got.Version)
	assert.Equal(t, []byte("v2"), got.Payload)
}

func TestReplace_Errors(t *testing.T) {
	r := New()
	_, err := r.Replace("auth", component("auth", "1.stable.0.stable.0.stable", "v1"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Register(component("auth", "1.stable.0.stable.0.stable", "v1"))
	require.NoError(t, err)
	_, err = r.Replace("auth", component("other", "1.stable.0.stable.0.stable", "v1"))
	require.ErrorIs(t, err, ErrInvalidComponent)
}

func TestDeregister(t *testing.T) {
	r := New()
	_, err := r.Register(component("a", "1.stable.0.stable.0.stable", "a"))
	require.NoError(t, err)
	_, err = r.Register(component("b", "1.stable.0.stable.0.stable", "b"))
	require.NoError(t, err)

	require.NoError(t, r.Deregister("a"))
	assert.False(t, r.Has("a"))
	assert.Equal(t, []string{"b"}, r.Names())
	require.ErrorIs(t, r.Deregister("a"), ErrNotFound)
}

func TestVerifyAndSweep_DetectCorruption(t *testing.T) {
	r := New()
	_, err := r.Register(component("a", "1.stable.0.stable.0.stable", "a"))
	require.NoError(t, err)
	_, err = r.Register(component("b", "1.stable.0.stable.0.stable", "b"))
	require.NoError(t, err)

	corrupt := component("b", "1.stable.0.stable.0.stable", "tampered")
	corrupt.Checksum = Checksum([]byte("b"))
	_, err = r.Replace("b", corrupt)
	require.NoError(t, err)

	require.NoError(t, r.Verify("a"))
	err = r.Verify("b")
	require.ErrorIs(t, err, ErrCorruption)
	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "b", ce.Name)

	errs := r.Sweep()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCorruption)
}

func TestReplace_ReadersNeverSeeMixedComponent(t *testing.T) {
	r := New()
	a := component("svc", "1.stable.0.stable.0.stable", "payload-a", Dependency{Target: "x"})
	b := component("svc", "1.stable.1.stable.0.stable", "payload-b", Dependency{Target: "y"}, Dependency{Target: "z"})
	a.Checksum = Checksum(a.Payload)
	b.Checksum = Checksum(b.Payload)
	_, err := r.Restore(a)
	require.NoError(t, err)

	matches := func(got, want Component) bool {
		return got.Version == want.Version &&
			bytes.Equal(got.Payload, want.Payload) &&
			got.Checksum == want.Checksum &&
			len(got.Dependencies) == len(want.Dependencies)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 8)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, err := r.Get("svc")
				if err != nil {
					errs <- err.Error()
					return
				}
				if !matches(got, a) && !matches(got, b) {
					errs <- "observed a partially replaced component: " + got.ID()
					return
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		next := a
		if i%2 == 0 {
			next = b
		}
		_, err := r.Replace("svc", next)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}

func TestRecords_RoundTrip(t *testing.T) {
	r := New()
	_, err := r.Register(component("auth", "2.stable.1.experimental.0.stable+b7", "body",
		Dependency{Target: "db", Constraint: "^1.0.0", Weight: 2, Optional: true}))
	require.NoError(t, err)

	recs := r.Export()
	require.Len(t, recs, 1)
	assert.Equal(t, "2.stable.1.experimental.0.stable+b7", recs[0].Version)

	c, err := FromRecord(recs[0])
	require.NoError(t, err)
	orig, err := r.Get("auth")
	require.NoError(t, err)
	assert.Equal(t, orig, c)

	restored := New()
	_, err = restored.Restore(c)
	require.NoError(t, err)
	require.NoError(t, restored.Verify("auth"))
}

func TestFromRecord_Errors(t *testing.T) {
	_, err := FromRecord(Record{Name: "a", Version: "1.0.0"})
	var pe *semver.ParseError
	require.ErrorAs(t, err, &pe)

	_, err = FromRecord(Record{Name: "a", Version: "1.stable.0.stable.0.stable", Checksum: "zz"})
	require.ErrorIs(t, err, ErrInvalidComponent)
}

func TestDependency_EdgeWeightDefault(t *testing.T) {
	assert.Equal(t, 1.0, Dependency{}.EdgeWeight())
	assert.Equal(t, 2.5, Dependency{Weight: 2.5}.EdgeWeight())
}

func TestRevision_BumpsOnEveryMutation(t *testing.T) {
	r := New()
	assert.Zero(t, r.Revision())

	_, err := r.Register(component("a", "1.stable.0.stable.0.stable", "a"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, r.Revision())

	_, err = r.Replace("a", component("a", "1.stable.1.stable.0.stable", "a2"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.Revision())

	_, _ = r.Get("a")
	_ = r.Verify("a")
	assert.EqualValues(t, 2, r.Revision())

	require.NoError(t, r.Deregister("a"))
	assert.EqualValues(t, 3, r.Revision())
}
