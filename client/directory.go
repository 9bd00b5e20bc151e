package client

import (
	"sort"

	"github.com/lowerthirds/lowerthirds/internal/models"
)

// Directory is the client's view of the server's channels, keyed by slug.
// It is not safe for concurrent use; Session serializes access.
type Directory struct {
	channels map[string]*models.Channel
}

// ReconcileResult lists the slugs touched by a reconciliation pass.
// Updated only contains entries whose name or slug actually changed.
type ReconcileResult struct {
	Added   []string
	Updated []string
	Removed []string
}

// Changed reports whether the pass altered the directory.
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Updated) > 0 || len(r.Removed) > 0
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{channels: make(map[string]*models.Channel)}
}

// Reconcile brings the directory in line with a full snapshot. Entries that
// survive keep their attached status; entries missing from the snapshot are
// dropped along with their status. Afterwards the directory holds exactly
// the snapshot's keys.
func (d *Directory) Reconcile(snapshot map[string]models.ChannelInfo) ReconcileResult {
	var result ReconcileResult

	removed := make(map[string]struct{}, len(d.channels))
	for slug := range d.channels {
		removed[slug] = struct{}{}
	}

	for slug, info := range snapshot {
		ch, ok := d.channels[slug]
		if !ok {
			d.channels[slug] = &models.Channel{Name: info.Name, Slug: info.Slug}
			result.Added = append(result.Added, slug)
			continue
		}
		if ch.Name != info.Name || ch.Slug != info.Slug {
			ch.Name = info.Name
			ch.Slug = info.Slug
			result.Updated = append(result.Updated, slug)
		}
		delete(removed, slug)
	}

	for slug := range removed {
		delete(d.channels, slug)
		result.Removed = append(result.Removed, slug)
	}

	sort.Strings(result.Added)
	sort.Strings(result.Updated)
	sort.Strings(result.Removed)
	return result
}

// Get returns the live entry for slug. Callers outside the package get
// copies through Session.
func (d *Directory) Get(slug string) (*models.Channel, bool) {
	ch, ok := d.channels[slug]
	return ch, ok
}

// Has reports whether slug is known.
func (d *Directory) Has(slug string) bool {
	_, ok := d.channels[slug]
	return ok
}

// Len returns the number of channels.
func (d *Directory) Len() int {
	return len(d.channels)
}

// Slugs returns the known slugs in sorted order.
func (d *Directory) Slugs() []string {
	slugs := make([]string, 0, len(d.channels))
	for slug := range d.channels {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Snapshot returns a deep copy of the directory.
func (d *Directory) Snapshot() map[string]*models.Channel {
	out := make(map[string]*models.Channel, len(d.channels))
	for slug, ch := range d.channels {
		out[slug] = ch.Clone()
	}
	return out
}

// Clear removes every channel.
func (d *Directory) Clear() {
	clear(d.channels)
}
