package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/lowerthirds/lowerthirds/internal/models"
	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

// Mode is what a client is for: operating a channel or rendering it.
type Mode string

const (
	// ModeControl selects its channel from the URL fragment and may send
	// show, hide and kill requests.
	ModeControl Mode = "control"
	// ModePlayout selects its channel from the page's data-channel
	// attribute and only renders.
	ModePlayout Mode = "playout"
)

var (
	ErrInvalidMode       = errors.New("invalid mode")
	ErrUnknownChannel    = errors.New("channel unknown")
	ErrChannelMismatch   = errors.New("channel is not the current channel")
	ErrNoSelection       = errors.New("no channel selected")
	ErrReadOnly          = errors.New("playout clients cannot control overlays")
	ErrReloadRequested   = errors.New("server requested a client reload")
	ErrNotConnected      = errors.New("not connected")
	errUnexpectedInbound = errors.New("unexpected inbound event")
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeControl, ModePlayout:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w %q, expected %s or %s", ErrInvalidMode, s, ModeControl, ModePlayout)
	}
}

// AddressSource yields the slug a client was pointed at, e.g. a URL
// fragment or a page attribute. It is read once per auto-selection attempt.
type AddressSource func() string

// StaticAddress returns an AddressSource that always yields slug.
func StaticAddress(slug string) AddressSource {
	return func() string { return slug }
}

// Emitter sends events to the server.
type Emitter interface {
	Emit(msgType protocol.MessageType, data interface{}) error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Mode Mode
	// Fragment is consulted in control mode. A leading '#' is ignored.
	Fragment AddressSource
	// ChannelAttribute is consulted in playout mode.
	ChannelAttribute AddressSource
	Emitter          Emitter
	Renderer         Renderer
}

// Session is the state one client holds: the channel directory, the
// selected channel and the overlay of that channel.
//
// Every handler runs to completion under the session lock, so handlers are
// atomic with respect to each other and are applied in call order.
type Session struct {
	mu sync.Mutex

	mode      Mode
	fragment  AddressSource
	attribute AddressSource
	emitter   Emitter
	renderer  Renderer

	directory *Directory
	selected  string
	overlay   Overlay
}

// NewSession creates a session with nothing selected.
func NewSession(opts SessionOptions) (*Session, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	s := &Session{
		mode:      mode,
		fragment:  opts.Fragment,
		attribute: opts.ChannelAttribute,
		emitter:   opts.Emitter,
		renderer:  opts.Renderer,
		directory: NewDirectory(),
	}
	if s.fragment == nil {
		s.fragment = StaticAddress("")
	}
	if s.attribute == nil {
		s.attribute = StaticAddress("")
	}
	if s.renderer == nil {
		s.renderer = nopRenderer{}
	}
	return s, nil
}

// Mode returns the session's mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Selected returns the current channel slug, if any.
func (s *Session) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != ""
}

// Overlay returns a copy of the overlay state.
func (s *Session) Overlay() Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay.clone()
}

// Channel returns a copy of a directory entry.
func (s *Session) Channel(slug string) (*models.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.directory.Get(slug)
	if !ok {
		return nil, false
	}
	return ch.Clone(), true
}

// Channels returns a copy of the whole directory.
func (s *Session) Channels() map[string]*models.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directory.Snapshot()
}

// HandleConnect re-asserts the channel join after a (re)connection. The
// server forgets room membership across reconnects.
func (s *Session) HandleConnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return nil
	}
	return s.join()
}

func (s *Session) join() error {
	if s.emitter == nil {
		return nil
	}
	if err := s.emitter.Emit(protocol.TypeJoinChannel, protocol.ChannelMessage{Channel: s.selected}); err != nil {
		return fmt.Errorf("join %s: %w", s.selected, err)
	}
	return nil
}

// HandleChannelsData reconciles the directory against a full snapshot and
// then tries to auto-select a channel if none is selected yet.
func (s *Session) HandleChannelsData(msg *protocol.ChannelsDataMessage) (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.directory.Reconcile(msg.Channels)
	if result.Changed() {
		glog.V(1).Infof("[session]channels added=%v updated=%v removed=%v\n", result.Added, result.Updated, result.Removed)
	}
	if s.selected != "" {
		return result, nil
	}
	return result, s.autoSelect()
}

func (s *Session) autoSelect() error {
	var slug string
	switch s.mode {
	case ModeControl:
		slug = strings.TrimPrefix(s.fragment(), "#")
	case ModePlayout:
		slug = s.attribute()
	}
	if slug == "" || !s.directory.Has(slug) {
		return nil
	}
	s.selected = slug
	glog.Infof("[session]selected channel %s\n", slug)
	return s.join()
}

// HandleChannelStatus attaches a status to a channel that has none yet.
// A channel's first status wins; later ones are ignored.
func (s *Session) HandleChannelStatus(msg *protocol.ChannelStatusMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.directory.Get(msg.Channel)
	if !ok {
		return fmt.Errorf("%s for %s: %w", protocol.TypeChannelStatus, msg.Channel, ErrUnknownChannel)
	}
	if ch.Status != nil {
		glog.V(1).Infof("[session]status for %s already set, ignoring update\n", msg.Channel)
		return nil
	}
	ch.Status = msg.Status()
	return nil
}

// guard checks that a channel-scoped event targets the selected channel.
func (s *Session) guard(msgType protocol.MessageType, slug string) error {
	if !s.directory.Has(slug) {
		return fmt.Errorf("%s for %s: %w", msgType, slug, ErrUnknownChannel)
	}
	if slug != s.selected {
		return fmt.Errorf("%s for %s while %q is current: %w", msgType, slug, s.selected, ErrChannelMismatch)
	}
	return nil
}

// HandleShow makes the lower third visible on the selected channel.
func (s *Session) HandleShow(msg *protocol.ShowLowerThirdMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(protocol.TypeShowLowerThird, msg.Channel); err != nil {
		return err
	}
	s.overlay.show(msg.LowerThird())
	s.renderer.ShowLowerThird(s.selected, s.overlay.clone())
	return nil
}

// HandleHide takes the overlay off screen but keeps its content.
func (s *Session) HandleHide(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(protocol.TypeHideLowerThird, slug); err != nil {
		return err
	}
	s.overlay.hide()
	s.renderer.HideLowerThird(s.selected, s.overlay.clone())
	return nil
}

// HandleKill tears the overlay down immediately and clears its content.
func (s *Session) HandleKill(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(protocol.TypeKillLowerThird, slug); err != nil {
		return err
	}
	s.overlay.kill()
	s.renderer.KillLowerThird(s.selected, s.overlay.clone())
	return nil
}

// Reset starts a new session: the directory, the selection and the overlay
// are all dropped. A visible overlay is killed first.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != "" && s.overlay.Content != nil {
		s.overlay.kill()
		s.renderer.KillLowerThird(s.selected, s.overlay.clone())
	}
	s.directory.Clear()
	s.selected = ""
	s.overlay = Overlay{Generation: s.overlay.Generation}
}

// Handle decodes and applies one inbound envelope.
func (s *Session) Handle(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeConnect:
		return s.HandleConnect()

	case protocol.TypeChannelsData:
		msg, err := protocol.DecodeChannelsData(env.Data)
		if err != nil {
			return err
		}
		_, err = s.HandleChannelsData(msg)
		return err

	case protocol.TypeChannelStatus:
		msg, err := protocol.DecodeChannelStatus(env.Data)
		if err != nil {
			return err
		}
		return s.HandleChannelStatus(msg)

	case protocol.TypeShowLowerThird:
		msg, err := protocol.DecodeShowLowerThird(env.Data)
		if err != nil {
			return err
		}
		return s.HandleShow(msg)

	case protocol.TypeHideLowerThird:
		msg, err := protocol.DecodeChannelMessage(env.Type, env.Data)
		if err != nil {
			return err
		}
		return s.HandleHide(msg.Channel)

	case protocol.TypeKillLowerThird:
		msg, err := protocol.DecodeChannelMessage(env.Type, env.Data)
		if err != nil {
			return err
		}
		return s.HandleKill(msg.Channel)

	case protocol.TypeReloadClient:
		s.Reset()
		return ErrReloadRequested

	case protocol.TypeAck:
		msg, err := protocol.DecodeAck(env.Data)
		if err != nil {
			return err
		}
		glog.V(1).Infof("[session]%s %s: %s\n", msg.Request, msg.Channel, msg.Status)
		return nil

	case protocol.TypeError:
		msg, err := protocol.DecodeError(env.Data)
		if err != nil {
			return err
		}
		glog.Warningf("[session]server error [%s] %s\n", msg.Code, msg.Message)
		return nil

	default:
		return fmt.Errorf("%w %q", errUnexpectedInbound, env.Type)
	}
}

// Show asks the server to show a lower third on the selected channel.
func (s *Session) Show(lt *models.LowerThird) error {
	if lt == nil {
		return errors.New("show: missing lower third")
	}
	slug, err := s.controlTarget()
	if err != nil {
		return err
	}
	msg := protocol.NewShowLowerThirdMessage(slug, lt)
	msg.ID = ""
	return s.emit(protocol.TypeShowLowerThird, msg)
}

// Hide asks the server to hide the selected channel's lower third.
func (s *Session) Hide() error {
	slug, err := s.controlTarget()
	if err != nil {
		return err
	}
	return s.emit(protocol.TypeHideLowerThird, protocol.ChannelMessage{Channel: slug})
}

// Kill asks the server to kill the selected channel's lower third.
func (s *Session) Kill() error {
	slug, err := s.controlTarget()
	if err != nil {
		return err
	}
	return s.emit(protocol.TypeKillLowerThird, protocol.ChannelMessage{Channel: slug})
}

func (s *Session) controlTarget() (string, error) {
	if s.mode != ModeControl {
		return "", ErrReadOnly
	}
	slug, ok := s.Selected()
	if !ok {
		return "", ErrNoSelection
	}
	return slug, nil
}

func (s *Session) emit(msgType protocol.MessageType, data interface{}) error {
	if s.emitter == nil {
		return ErrNotConnected
	}
	return s.emitter.Emit(msgType, data)
}

// logHandleError reports a dropped event. Mismatches are routine when a
// server broadcasts for several channels and are only logged verbosely.
func logHandleError(msgType protocol.MessageType, err error) {
	switch {
	case errors.Is(err, ErrChannelMismatch):
		glog.V(1).Infof("[session]drop %s: %s\n", msgType, err)
	case errors.Is(err, errUnexpectedInbound):
		glog.V(2).Infof("[session]ignore %s\n", msgType)
	default:
		glog.Warningf("[session]drop %s: %s\n", msgType, err)
	}
}
