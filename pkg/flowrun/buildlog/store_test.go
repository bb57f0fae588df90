package buildlog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrun/flowrun/pkg/flowrun/buildlog"
)

// entryAt builds a valid entry with a deterministic id and timestamp offset.
func entryAt(flowID, vertexID string, n int) *buildlog.Entry {
	return &buildlog.Entry{
		BuildID:   fmt.Sprintf("build-%04d", n),
		FlowID:    flowID,
		VertexID:  vertexID,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second),
		Data:      map[string]any{"output": n},
		Valid:     true,
	}
}

// testStoreConformance exercises the Store contract shared by all backends.
func testStoreConformance(t *testing.T, newStore func(t *testing.T, caps buildlog.Caps) buildlog.Store) {
	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{})
		defer s.Close()

		e := entryAt("flow-1", "v1", 1)
		e.Params = map[string]any{"value": "x"}
		e.Artifacts = map[string]any{"model": "m"}
		e.Error = ""

		pruned, err := s.LogVertexBuild(context.Background(), e)
		require.NoError(t, err)
		assert.Zero(t, pruned)

		entries, err := s.ListBuilds(context.Background(), "flow-1", 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		got := entries[0]
		assert.Equal(t, "build-0001", got.BuildID)
		assert.Equal(t, "v1", got.VertexID)
		assert.Equal(t, "x", got.Params["value"])
		assert.Equal(t, "m", got.Artifacts["model"])
		assert.True(t, got.Valid)
	})

	t.Run("InvalidEntry", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{})
		defer s.Close()

		_, err := s.LogVertexBuild(context.Background(), &buildlog.Entry{BuildID: "b"})
		assert.ErrorIs(t, err, buildlog.ErrInvalidEntry)
	})

	t.Run("PerVertexCap", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{MaxBuildsPerVertex: 3})
		defer s.Close()

		var totalPruned int64
		for n := 1; n <= 10; n++ {
			pruned, err := s.LogVertexBuild(context.Background(), entryAt("flow-1", "v1", n))
			require.NoError(t, err)
			totalPruned += pruned
		}
		assert.Equal(t, int64(7), totalPruned)

		entries, err := s.ListBuilds(context.Background(), "flow-1", 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		// Most recent first, oldest pruned.
		assert.Equal(t, "build-0010", entries[0].BuildID)
		assert.Equal(t, "build-0009", entries[1].BuildID)
		assert.Equal(t, "build-0008", entries[2].BuildID)
	})

	t.Run("PerVertexCapIsPerVertex", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{MaxBuildsPerVertex: 2})
		defer s.Close()

		n := 0
		for _, vertex := range []string{"v1", "v2"} {
			for i := 0; i < 2; i++ {
				n++
				_, err := s.LogVertexBuild(context.Background(), entryAt("flow-1", vertex, n))
				require.NoError(t, err)
			}
		}

		entries, err := s.ListBuilds(context.Background(), "flow-1", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 4) // both vertices keep their full quota
	})

	t.Run("GlobalCap", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{MaxBuildsPerVertex: 10, MaxBuildsToKeep: 5})
		defer s.Close()

		// Many vertices, one build each: only the global cap binds.
		for n := 1; n <= 8; n++ {
			_, err := s.LogVertexBuild(context.Background(), entryAt("flow-1", fmt.Sprintf("v%d", n), n))
			require.NoError(t, err)
		}

		entries, err := s.ListBuilds(context.Background(), "flow-1", 0)
		require.NoError(t, err)
		require.Len(t, entries, 5)
		assert.Equal(t, "build-0008", entries[0].BuildID)
		assert.Equal(t, "build-0004", entries[4].BuildID)
	})

	t.Run("GlobalCapIsPerFlow", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{MaxBuildsToKeep: 2})
		defer s.Close()

		n := 0
		for _, flow := range []string{"flow-1", "flow-2"} {
			for i := 0; i < 2; i++ {
				n++
				_, err := s.LogVertexBuild(context.Background(), entryAt(flow, fmt.Sprintf("v%d", n), n))
				require.NoError(t, err)
			}
		}

		for _, flow := range []string{"flow-1", "flow-2"} {
			entries, err := s.ListBuilds(context.Background(), flow, 0)
			require.NoError(t, err)
			assert.Len(t, entries, 2, flow)
		}
	})

	t.Run("ListLimit", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{})
		defer s.Close()

		for n := 1; n <= 5; n++ {
			_, err := s.LogVertexBuild(context.Background(), entryAt("flow-1", "v1", n))
			require.NoError(t, err)
		}

		entries, err := s.ListBuilds(context.Background(), "flow-1", 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "build-0005", entries[0].BuildID)
	})

	t.Run("DeleteBuilds", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{})
		defer s.Close()

		_, err := s.LogVertexBuild(context.Background(), entryAt("flow-1", "v1", 1))
		require.NoError(t, err)
		_, err = s.LogVertexBuild(context.Background(), entryAt("flow-2", "v1", 2))
		require.NoError(t, err)

		require.NoError(t, s.DeleteBuilds(context.Background(), "flow-1"))

		entries, err := s.ListBuilds(context.Background(), "flow-1", 0)
		require.NoError(t, err)
		assert.Empty(t, entries)

		entries, err = s.ListBuilds(context.Background(), "flow-2", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("ClosedStore", func(t *testing.T) {
		s := newStore(t, buildlog.Caps{})
		require.NoError(t, s.Close())

		_, err := s.LogVertexBuild(context.Background(), entryAt("flow-1", "v1", 1))
		assert.ErrorIs(t, err, buildlog.ErrStoreClosed)

		_, err = s.ListBuilds(context.Background(), "flow-1", 0)
		assert.ErrorIs(t, err, buildlog.ErrStoreClosed)

		assert.ErrorIs(t, s.DeleteBuilds(context.Background(), "flow-1"), buildlog.ErrStoreClosed)
	})
}
