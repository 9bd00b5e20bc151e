package client

import "github.com/lowerthirds/lowerthirds/internal/models"

// OverlayState is whether the selected channel's lower third is on screen.
type OverlayState int

const (
	OverlayHidden OverlayState = iota
	OverlayVisible
)

func (s OverlayState) String() string {
	switch s {
	case OverlayVisible:
		return "visible"
	default:
		return "hidden"
	}
}

// Overlay is the display state of the selected channel.
//
// Content survives a hide so the last lower third can still be inspected;
// a kill clears it. Generation changes on every show and kill, so a
// renderer can tell whether a pending transition or auto-hide timer still
// belongs to the overlay it was started for.
type Overlay struct {
	State      OverlayState
	Content    *models.LowerThird
	Generation uint64
}

// Visible reports whether the overlay is shown.
func (o Overlay) Visible() bool {
	return o.State == OverlayVisible
}

func (o *Overlay) show(lt *models.LowerThird) {
	content := lt.Clone()
	// the id is for server-side tracking only
	content.ID = ""
	o.Content = content
	o.State = OverlayVisible
	o.Generation++
}

func (o *Overlay) hide() {
	o.State = OverlayHidden
}

func (o *Overlay) kill() {
	o.Content = nil
	o.State = OverlayHidden
	o.Generation++
}

func (o Overlay) clone() Overlay {
	o.Content = o.Content.Clone()
	return o
}

// Renderer draws overlay transitions. Methods are called synchronously
// while the session handles an event, in event order, and must not call
// back into the session.
type Renderer interface {
	ShowLowerThird(channel string, overlay Overlay)
	HideLowerThird(channel string, overlay Overlay)
	KillLowerThird(channel string, overlay Overlay)
}

type nopRenderer struct{}

func (nopRenderer) ShowLowerThird(string, Overlay) {}
func (nopRenderer) HideLowerThird(string, Overlay) {}
func (nopRenderer) KillLowerThird(string, Overlay) {}
