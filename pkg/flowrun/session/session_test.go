package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/pkg/flowrun"
	"github.com/flowrun/flowrun/pkg/flowrun/component"
	"github.com/flowrun/flowrun/pkg/flowrun/session"
)

func testPayload(t *testing.T) *flowrun.FlowPayload {
	t.Helper()
	p, err := flowrun.ParsePayload([]byte(`{
		"data": {
			"nodes": [
				{"id": "a", "data": {"type": "text.constant", "params": {"value": "hi"}}},
				{"id": "b", "data": {"type": "text.upper"}}
			],
			"edges": [{"source": "a", "target": "b", "target_input": "input"}]
		}
	}`))
	require.NoError(t, err)
	return p
}

func testEntry(t *testing.T) *session.Entry {
	t.Helper()
	p := testPayload(t)
	g, err := flowrun.FromPayload(p, "flow-1", "user-1", component.DefaultRegistry())
	require.NoError(t, err)
	return &session.Entry{
		Graph:     g,
		Payload:   p,
		FlowID:    "flow-1",
		UserID:    "user-1",
		Artifacts: map[string]any{"model": "m"},
	}
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "sess:hash", session.BuildKey("sess", "hash"))
	assert.Equal(t, "hash", session.BuildKey("", "hash"))
}

// TestBuildKey_TracksPayloadHash verifies the key changes whenever the flow
// content changes, so edits never hit a stale cached graph.
func TestBuildKey_TracksPayloadHash(t *testing.T) {
	p := testPayload(t)
	h1, err := p.ContentHash()
	require.NoError(t, err)

	edited := testPayload(t)
	edited.Data.Nodes[0].Data.Params["value"] = "other"
	h2, err := edited.ContentHash()
	require.NoError(t, err)

	assert.NotEqual(t, session.BuildKey("s", h1), session.BuildKey("s", h2))
	assert.Equal(t, session.BuildKey("s", h1), session.BuildKey("s", h1))
}

func TestGenerateSessionID(t *testing.T) {
	id1, err := session.GenerateSessionID()
	require.NoError(t, err)
	assert.Len(t, id1, 16)

	id2, err := session.GenerateSessionID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := session.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, session.ErrNotFound)

	entry := testEntry(t)
	require.NoError(t, s.Set(ctx, "k", entry))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	// The memory store returns the live entry, not a serialized copy.
	assert.Same(t, entry.Graph, got.Graph)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStore_NilEntry(t *testing.T) {
	s := session.NewMemoryStore()
	defer s.Close()
	assert.ErrorIs(t, s.Set(context.Background(), "k", nil), session.ErrNilEntry)
}

func TestMemoryStore_Clear(t *testing.T) {
	s := session.NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", testEntry(t)))
	require.NoError(t, s.Set(ctx, "b", testEntry(t)))
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Closed(t *testing.T) {
	s := session.NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, session.ErrStoreClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "k", testEntry(t)), session.ErrStoreClosed)
}

func TestService_LoadSession_MissThenHit(t *testing.T) {
	svc := session.NewService(session.NewMemoryStore())
	defer svc.Close()
	ctx := context.Background()

	var builds atomic.Int32
	build := func(context.Context) (*session.Entry, error) {
		builds.Add(1)
		return testEntry(t), nil
	}

	first, err := svc.LoadSession(ctx, "k", build)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int32(1), builds.Load())

	second, err := svc.LoadSession(ctx, "k", build)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), builds.Load())
}

// TestService_LoadSession_SingleConstruction verifies concurrent loads for
// one key coalesce onto a single builder invocation.
func TestService_LoadSession_SingleConstruction(t *testing.T) {
	svc := session.NewService(session.NewMemoryStore())
	defer svc.Close()

	var builds atomic.Int32
	build := func(context.Context) (*session.Entry, error) {
		builds.Add(1)
		time.Sleep(20 * time.Millisecond) // hold concurrent callers in flight
		return testEntry(t), nil
	}

	const callers = 10
	results := make([]*session.Entry, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := svc.LoadSession(context.Background(), "shared", build)
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestService_LoadSession_BuildError_NotCached(t *testing.T) {
	svc := session.NewService(session.NewMemoryStore())
	defer svc.Close()
	ctx := context.Background()

	boom := errors.New("construction failed")
	_, err := svc.LoadSession(ctx, "k", func(context.Context) (*session.Entry, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	// A failed construction leaves no entry behind.
	var builds atomic.Int32
	_, err = svc.LoadSession(ctx, "k", func(context.Context) (*session.Entry, error) {
		builds.Add(1)
		return testEntry(t), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), builds.Load())
}

func TestService_LoadSession_NilBuilder(t *testing.T) {
	svc := session.NewService(session.NewMemoryStore())
	defer svc.Close()
	ctx := context.Background()

	// No cached entry and nothing to construct from: empty, not an error.
	e, err := svc.LoadSession(ctx, "absent", nil)
	require.NoError(t, err)
	assert.Nil(t, e)

	// A cached entry is still returned without a builder.
	entry := testEntry(t)
	require.NoError(t, svc.UpdateSession(ctx, "present", entry))
	e, err = svc.LoadSession(ctx, "present", nil)
	require.NoError(t, err)
	assert.Same(t, entry, e)
}

func TestService_ClearSession(t *testing.T) {
	svc := session.NewService(session.NewMemoryStore())
	defer svc.Close()
	ctx := context.Background()

	var builds atomic.Int32
	build := func(context.Context) (*session.Entry, error) {
		builds.Add(1)
		return testEntry(t), nil
	}

	_, err := svc.LoadSession(ctx, "k", build)
	require.NoError(t, err)
	require.NoError(t, svc.ClearSession(ctx, "k"))

	_, err = svc.LoadSession(ctx, "k", build)
	require.NoError(t, err)
	assert.Equal(t, int32(2), builds.Load())
}

func TestService_UpdateSession(t *testing.T) {
	store := session.NewMemoryStore()
	svc := session.NewService(store)
	defer svc.Close()
	ctx := context.Background()

	entry := testEntry(t)
	require.NoError(t, svc.UpdateSession(ctx, "k", entry))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Same(t, entry, got)
}
