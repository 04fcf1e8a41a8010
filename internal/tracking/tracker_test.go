package tracking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookbook/internal/core/apperror"
	"cookbook/internal/core/entity"
	"cookbook/internal/metadata"
)

type note struct {
	ID    int64
	Title string
	Body  *string
	Stars *int
}

func (*note) EntityName() string { return "Note" }

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	typ := metadata.Define[note]("Note").
		Key("ID", func(n *note) *int64 { return &n.ID }).
		String("Title", func(n *note) *string { return &n.Title }).
		NullString("Body", func(n *note) **string { return &n.Body }).
		NullInt("Stars", func(n *note) **int { return &n.Stars }).
		MustBuild()
	reg, err := metadata.NewRegistry(typ)
	require.NoError(t, err)
	return New(reg)
}

func strPtr(s string) *string { return &s }

func TestTrack_Duplicate(t *testing.T) {
	tr := newTracker(t)
	n := &note{Title: "Foo"}

	_, err := tr.Track(n, entity.Added)
	require.NoError(t, err)

	_, err = tr.Track(n, entity.Added)
	assert.ErrorIs(t, err, apperror.ErrDuplicateTracking)
	assert.Equal(t, 1, tr.Len())
}

func TestTrack_DuplicateKey(t *testing.T) {
	tr := newTracker(t)

	_, err := tr.Track(&note{ID: 1, Title: "a"}, entity.Unchanged)
	require.NoError(t, err)

	_, err = tr.Track(&note{ID: 1, Title: "b"}, entity.Unchanged)
	assert.ErrorIs(t, err, apperror.ErrDuplicateTracking)

	// unkeyed added instances never collide
	_, err = tr.Track(&note{Title: "c"}, entity.Added)
	require.NoError(t, err)
	_, err = tr.Track(&note{Title: "d"}, entity.Added)
	require.NoError(t, err)
}

func TestTrack_InvalidInitialState(t *testing.T) {
	tr := newTracker(t)

	for _, s := range []entity.State{entity.Detached, entity.Deleted} {
		_, err := tr.Track(&note{ID: 1}, s)
		assert.ErrorIs(t, err, apperror.ErrInvalidTransition, s.String())
	}
	assert.Equal(t, 0, tr.Len())
}

// placeIn brings a fresh instance into the given state through legal steps.
func placeIn(t *testing.T, tr *Tracker, s entity.State) *note {
	t.Helper()
	n := &note{ID: 10, Title: "x"}
	switch s {
	case entity.Detached:
	case entity.Added:
		n.ID = 0
		_, err := tr.Track(n, entity.Added)
		require.NoError(t, err)
	case entity.Unchanged:
		_, err := tr.Track(n, entity.Unchanged)
		require.NoError(t, err)
	case entity.Modified:
		_, err := tr.Track(n, entity.Unchanged)
		require.NoError(t, err)
		require.NoError(t, tr.SetState(n, entity.Modified))
	case entity.Deleted:
		_, err := tr.Track(n, entity.Unchanged)
		require.NoError(t, err)
		require.NoError(t, tr.SetState(n, entity.Deleted))
	}
	require.Equal(t, s, tr.State(n))
	return n
}

func TestSetState_TransitionTable(t *testing.T) {
	legal := map[entity.State]map[entity.State]bool{
		entity.Detached:  {entity.Added: true, entity.Unchanged: true, entity.Modified: true},
		entity.Added:     {entity.Unchanged: true, entity.Detached: true},
		entity.Unchanged: {entity.Modified: true, entity.Deleted: true, entity.Detached: true},
		entity.Modified:  {entity.Unchanged: true, entity.Deleted: true, entity.Detached: true},
		entity.Deleted:   {entity.Detached: true},
	}

	for _, from := range entity.States() {
		for _, to := range entity.States() {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				tr := newTracker(t)
				n := placeIn(t, tr, from)

				err := tr.SetState(n, to)
				switch {
				case from == to:
					require.NoError(t, err)
					assert.Equal(t, from, tr.State(n))
				case legal[from][to]:
					require.NoError(t, err)
					assert.Equal(t, to, tr.State(n))
				default:
					assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
					assert.Equal(t, from, tr.State(n))
				}
			})
		}
	}
}

func TestDetectChanges_MinimalDirtySet(t *testing.T) {
	tr := newTracker(t)
	n := &note{ID: 1, Title: "Foo", Body: strPtr("Bar")}
	entry, err := tr.Track(n, entity.Unchanged)
	require.NoError(t, err)

	assert.Equal(t, 0, tr.DetectChanges())
	assert.Equal(t, entity.Unchanged, entry.State())

	n.Body = strPtr("Baz")
	assert.Equal(t, 1, tr.DetectChanges())
	assert.Equal(t, entity.Modified, entry.State())
	assert.True(t, entry.IsModified("Body"))
	assert.False(t, entry.IsModified("Title"))
	assert.False(t, entry.IsModified("Stars"))

	orig, ok := entry.OriginalValue("Body")
	require.True(t, ok)
	assert.Equal(t, "Bar", orig)
	cur, _ := entry.CurrentValue("Body")
	assert.Equal(t, "Baz", cur)

	changes := entry.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Field: "Body", Column: "body", Original: "Bar", Current: "Baz"}, changes[0])
}

func TestDetectChanges_ValueEquality(t *testing.T) {
	tr := newTracker(t)
	n := &note{ID: 1, Title: "Foo", Body: strPtr("Bar")}
	entry, err := tr.Track(n, entity.Unchanged)
	require.NoError(t, err)

	// Same value in a new allocation is not a change.
	n.Body = strPtr("Bar")
	tr.DetectChanges()
	assert.Equal(t, entity.Unchanged, entry.State())

	// Reverting after detection does not clear the bit.
	n.Title = "Other"
	tr.DetectChanges()
	n.Title = "Foo"
	tr.DetectChanges()
	assert.True(t, entry.IsModified("Title"))
}

func TestDetectChanges_IgnoresUnknownOriginals(t *testing.T) {
	tr := newTracker(t)
	n := &note{ID: 1, Title: "Foo"}
	entry, err := tr.Track(n, entity.Modified)
	require.NoError(t, err)

	assert.False(t, entry.OriginalsKnown())
	assert.Equal(t, 3, entry.Dirty().Len())
	assert.False(t, entry.IsModified("ID"))
	assert.Equal(t, 0, tr.DetectChanges())
}

func TestAcceptAllChanges(t *testing.T) {
	tr := newTracker(t)
	added := &note{Title: "new"}
	modified := &note{ID: 2, Title: "old"}
	deleted := &note{ID: 3, Title: "gone"}

	_, err := tr.Track(added, entity.Added)
	require.NoError(t, err)
	_, err = tr.Track(modified, entity.Unchanged)
	require.NoError(t, err)
	_, err = tr.Track(deleted, entity.Unchanged)
	require.NoError(t, err)
	require.NoError(t, tr.SetState(deleted, entity.Deleted))

	modified.Title = "changed"
	tr.DetectChanges()
	added.ID = 1 // assigned by the store

	tr.AcceptAllChanges()

	assert.Equal(t, entity.Unchanged, tr.State(added))
	assert.Equal(t, entity.Unchanged, tr.State(modified))
	assert.Equal(t, entity.Detached, tr.State(deleted))
	assert.Equal(t, 2, tr.Len())
	assert.False(t, tr.HasChanges())

	entry, ok := tr.Lookup(tr.entries[added].Type(), []any{int64(1)})
	require.True(t, ok)
	assert.Same(t, added, entry.Entity())

	e, _ := tr.Entry(modified)
	orig, _ := e.OriginalValue("Title")
	assert.Equal(t, "changed", orig)
	assert.Equal(t, 0, e.Dirty().Len())
}

func TestSetValue(t *testing.T) {
	tr := newTracker(t)
	n := &note{ID: 1, Title: "Foo"}
	entry, err := tr.Track(n, entity.Unchanged)
	require.NoError(t, err)

	require.NoError(t, tr.SetValue(n, "Title", "Foo"))
	assert.Equal(t, entity.Unchanged, entry.State())

	require.NoError(t, tr.SetValue(n, "Stars", 4))
	require.NotNil(t, n.Stars)
	assert.Equal(t, 4, *n.Stars)
	assert.Equal(t, entity.Modified, entry.State())
	assert.True(t, entry.IsModified("Stars"))

	assert.Error(t, tr.SetValue(n, "Missing", 1))
}

func TestMarkModified(t *testing.T) {
	tr := newTracker(t)
	n := &note{ID: 1, Title: "Foo"}

	assert.ErrorIs(t, tr.MarkModified(n, "Title"), apperror.ErrNotTracked)

	entry, err := tr.Track(n, entity.Unchanged)
	require.NoError(t, err)
	require.NoError(t, tr.MarkModified(n, "Title"))
	assert.Equal(t, entity.Modified, entry.State())
	assert.Equal(t, []*metadata.Field{entry.Type().Fields()[1]}, entry.DirtyFields())
}

func TestMarkAllModified(t *testing.T) {
	tr := newTracker(t)
	n := &note{ID: 1, Title: "Foo", Body: strPtr("Bar")}

	assert.ErrorIs(t, tr.MarkAllModified(n), apperror.ErrNotTracked)

	entry, err := tr.Track(n, entity.Unchanged)
	require.NoError(t, err)
	require.NoError(t, tr.SetValue(n, "Body", strPtr("Baz")))
	require.Equal(t, 1, entry.Dirty().Len())

	require.NoError(t, tr.MarkAllModified(n))
	assert.Equal(t, entity.Modified, entry.State())
	assert.Equal(t, 3, entry.Dirty().Len())
	assert.False(t, entry.IsModified("ID"))

	require.NoError(t, tr.SetState(n, entity.Deleted))
	assert.ErrorIs(t, tr.MarkAllModified(n), apperror.ErrInvalidTransition)
}

func TestEntriesOrderAndClear(t *testing.T) {
	tr := newTracker(t)
	a, b, c := &note{Title: "a"}, &note{Title: "b"}, &note{Title: "c"}
	for _, n := range []*note{a, b, c} {
		_, err := tr.Track(n, entity.Added)
		require.NoError(t, err)
	}

	entries := tr.Entries()
	require.Len(t, entries, 3)
	assert.Same(t, a, entries[0].Entity())
	assert.Same(t, c, entries[2].Entity())
	assert.True(t, tr.HasChanges())

	tr.Clear()
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, entity.Detached, tr.State(a))
	assert.Equal(t, entity.Detached, entries[0].State())
}

func TestMask(t *testing.T) {
	var m Mask
	m = m.With(0).With(3).With(63)
	assert.True(t, m.Has(3))
	assert.False(t, m.Has(2))
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []int{0, 3, 63}, m.Ordinals())
}
