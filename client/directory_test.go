package client

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/lowerthirds/lowerthirds/internal/models"
)

func snapshot(entries ...models.ChannelInfo) map[string]models.ChannelInfo {
	out := make(map[string]models.ChannelInfo, len(entries))
	for _, e := range entries {
		out[e.Slug] = e
	}
	return out
}

func TestDirectory_ReconcileAddsUpdatesRemoves(t *testing.T) {
	d := NewDirectory()

	result := d.Reconcile(snapshot(
		models.ChannelInfo{Name: "A", Slug: "a"},
		models.ChannelInfo{Name: "B", Slug: "b"},
	))
	assert.Equal(t, result.Added, []string{"a", "b"})
	assert.Equal(t, d.Slugs(), []string{"a", "b"})

	result = d.Reconcile(snapshot(models.ChannelInfo{Name: "B2", Slug: "b"}))
	assert.Equal(t, result.Updated, []string{"b"})
	assert.Equal(t, result.Removed, []string{"a"})
	assert.Equal(t, len(result.Added), 0)

	assert.Equal(t, d.Slugs(), []string{"b"})
	ch, ok := d.Get("b")
	assert.Equal(t, ok, true)
	assert.Equal(t, *ch, models.Channel{Name: "B2", Slug: "b"})
}

func TestDirectory_ReconcileIsIdempotent(t *testing.T) {
	d := NewDirectory()
	s := snapshot(
		models.ChannelInfo{Name: "News", Slug: "news"},
		models.ChannelInfo{Name: "Sports", Slug: "sports"},
	)

	d.Reconcile(s)
	once := d.Snapshot()
	result := d.Reconcile(s)

	assert.Equal(t, result.Changed(), false)
	assert.Equal(t, d.Snapshot(), once)
}

func TestDirectory_ReconcileKeySetMatchesSnapshot(t *testing.T) {
	d := NewDirectory()
	snapshots := []map[string]models.ChannelInfo{
		snapshot(models.ChannelInfo{Name: "A", Slug: "a"}),
		snapshot(models.ChannelInfo{Name: "B", Slug: "b"}, models.ChannelInfo{Name: "C", Slug: "c"}),
		snapshot(),
		snapshot(models.ChannelInfo{Name: "A", Slug: "a"}, models.ChannelInfo{Name: "C", Slug: "c"}),
		snapshot(models.ChannelInfo{Name: "a", Slug: "A"}),
	}
	for _, s := range snapshots {
		d.Reconcile(s)
		assert.Equal(t, d.Len(), len(s))
		for slug := range s {
			assert.Equal(t, d.Has(slug), true)
		}
	}
}

func TestDirectory_ReconcilePreservesStatus(t *testing.T) {
	d := NewDirectory()
	d.Reconcile(snapshot(models.ChannelInfo{Name: "News", Slug: "news"}))
	ch, _ := d.Get("news")
	ch.Status = &models.ChannelStatus{LowerThirdVisible: true}

	d.Reconcile(snapshot(models.ChannelInfo{Name: "World News", Slug: "news"}))
	ch, _ = d.Get("news")
	assert.Equal(t, ch.Name, "World News")
	assert.NotEqual(t, ch.Status, nil)
	assert.Equal(t, ch.Status.LowerThirdVisible, true)

	// dropping the channel drops its status; re-adding starts clean
	d.Reconcile(snapshot())
	d.Reconcile(snapshot(models.ChannelInfo{Name: "News", Slug: "news"}))
	ch, _ = d.Get("news")
	assert.Equal(t, ch.Status == nil, true)
}

func TestDirectory_SnapshotIsACopy(t *testing.T) {
	d := NewDirectory()
	d.Reconcile(snapshot(models.ChannelInfo{Name: "News", Slug: "news"}))

	copied := d.Snapshot()
	copied["news"].Name = "changed"

	ch, _ := d.Get("news")
	assert.Equal(t, ch.Name, "News")
}
