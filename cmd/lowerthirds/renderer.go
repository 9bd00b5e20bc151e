package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lowerthirds/lowerthirds/client"
)

// consoleRenderer prints overlay transitions. A lower third with a duration
// hides itself locally once the duration has passed, unless a newer
// transition happened first.
type consoleRenderer struct {
	out io.Writer

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func newConsoleRenderer(out io.Writer) *consoleRenderer {
	return &consoleRenderer{out: out}
}

func (r *consoleRenderer) ShowLowerThird(channel string, overlay client.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimer()
	r.gen = overlay.Generation

	lt := overlay.Content
	fmt.Fprintf(r.out, "[%s] show %s: %s", channel, lt.Design, lt.Title)
	if lt.Subtitle != nil {
		fmt.Fprintf(r.out, " / %s", *lt.Subtitle)
	}
	fmt.Fprintln(r.out)

	if d, ok := lt.DisplayDuration(); ok {
		gen := overlay.Generation
		r.timer = time.AfterFunc(d, func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.gen != gen || r.timer == nil {
				return
			}
			r.timer = nil
			fmt.Fprintf(r.out, "[%s] hide (after %s)\n", channel, d)
		})
	}
}

func (r *consoleRenderer) HideLowerThird(channel string, overlay client.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimer()
	r.gen = overlay.Generation
	fmt.Fprintf(r.out, "[%s] hide\n", channel)
}

func (r *consoleRenderer) KillLowerThird(channel string, overlay client.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimer()
	r.gen = overlay.Generation
	fmt.Fprintf(r.out, "[%s] kill\n", channel)
}

func (r *consoleRenderer) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
