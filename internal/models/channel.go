package models

// ChannelInfo is the directory entry for a channel as sent in a snapshot.
type ChannelInfo struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ChannelStatus is the live overlay state of a channel.
type ChannelStatus struct {
	LowerThirdVisible bool        `json:"lower_third_visible"`
	CurrentLowerThird *LowerThird `json:"current_lower_third"`
}

// Channel is a lower thirds channel. Slug is the directory key and must
// match the key it is stored under.
type Channel struct {
	Name   string         `json:"name"`
	Slug   string         `json:"slug"`
	Status *ChannelStatus `json:"status,omitempty"`
}

// Info returns the snapshot form of the channel.
func (c *Channel) Info() ChannelInfo {
	return ChannelInfo{Name: c.Name, Slug: c.Slug}
}

// Clone returns a deep copy of the channel.
func (c *Channel) Clone() *Channel {
	out := &Channel{Name: c.Name, Slug: c.Slug}
	if c.Status != nil {
		status := *c.Status
		status.CurrentLowerThird = c.Status.CurrentLowerThird.Clone()
		out.Status = &status
	}
	return out
}
