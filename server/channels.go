package server

import (
	"errors"
	"sync"

	"github.com/lowerthirds/lowerthirds/internal/config"
	"github.com/lowerthirds/lowerthirds/internal/models"
)

var (
	ErrUnknownChannel = errors.New("unknown channel slug")
	ErrConcurrency    = errors.New("another lower third is already being displayed")
)

// Channel is a logical container for lower thirds. Its rendered view is
// used as an overlay in a video signal; lower thirds played to a channel are
// only shown in render clients that joined it.
type Channel struct {
	slug string

	mu      sync.Mutex
	name    string
	visible bool
	current *models.LowerThird
}

// Slug returns the channel's slug.
func (c *Channel) Slug() string {
	return c.slug
}

// Name returns the channel's display name.
func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Info returns the snapshot entry for the channel.
func (c *Channel) Info() models.ChannelInfo {
	return models.ChannelInfo{Name: c.Name(), Slug: c.slug}
}

// Status returns a copy of the channel's overlay state.
func (c *Channel) Status() *models.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Channel) statusLocked() *models.ChannelStatus {
	return &models.ChannelStatus{
		LowerThirdVisible: c.visible,
		CurrentLowerThird: c.current.Clone(),
	}
}

// show stores lt as the current lower third. With exclusive set, a visible
// lower third blocks the show and the new one is marked visible.
func (c *Channel) show(lt *models.LowerThird, exclusive bool) (*models.ChannelStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exclusive && c.visible {
		return nil, ErrConcurrency
	}
	c.current = lt.Clone()
	if exclusive {
		c.visible = true
	}
	return c.statusLocked(), nil
}

// clear drops the current lower third. Used by both hide and kill.
func (c *Channel) clear() *models.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.visible = false
	return c.statusLocked()
}

func (c *Channel) restore(status *models.ChannelStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = status.LowerThirdVisible
	c.current = status.CurrentLowerThird.Clone()
}

// Registry holds the configured channels in configuration order.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	order    []string
}

// NewRegistry creates a registry from validated channel settings.
func NewRegistry(channels []config.ChannelConfig) *Registry {
	r := &Registry{}
	r.Replace(channels)
	return r
}

// Replace swaps in a new channel list. Channels whose slug survives keep
// their overlay state. It returns the slugs that were dropped.
func (r *Registry) Replace(channels []config.ChannelConfig) (removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*Channel, len(channels))
	order := make([]string, 0, len(channels))
	for _, cfg := range channels {
		ch, ok := r.channels[cfg.Slug]
		if ok {
			ch.mu.Lock()
			ch.name = cfg.Name
			ch.mu.Unlock()
		} else {
			ch = &Channel{slug: cfg.Slug, name: cfg.Name}
		}
		next[cfg.Slug] = ch
		order = append(order, cfg.Slug)
	}
	for _, slug := range r.order {
		if _, ok := next[slug]; !ok {
			removed = append(removed, slug)
		}
	}
	r.channels = next
	r.order = order
	return removed
}

// Restore applies persisted statuses to known channels and ignores the rest.
func (r *Registry) Restore(statuses map[string]*models.ChannelStatus) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for slug, status := range statuses {
		if ch, ok := r.channels[slug]; ok {
			ch.restore(status)
		}
	}
}

// Get returns the channel for slug.
func (r *Registry) Get(slug string) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[slug]
	if !ok {
		return nil, ErrUnknownChannel
	}
	return ch, nil
}

// List returns the channels in configuration order.
func (r *Registry) List() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.channels[slug])
	}
	return out
}

// Snapshot returns the channels_data directory.
func (r *Registry) Snapshot() map[string]models.ChannelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.ChannelInfo, len(r.channels))
	for slug, ch := range r.channels {
		out[slug] = ch.Info()
	}
	return out
}
