package server

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lowerthirds/lowerthirds/internal/config"
	"github.com/lowerthirds/lowerthirds/internal/db"
	"github.com/lowerthirds/lowerthirds/internal/models"
	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server holds the server's dependencies.
type Server struct {
	hub       *Hub
	registry  *Registry
	db        *db.ServerDB
	exclusive atomic.Bool
}

// NewServer creates a new server instance and restores persisted channel
// state into the registry.
func NewServer(hub *Hub, registry *Registry, database *db.ServerDB, exclusiveShow bool) (*Server, error) {
	s := &Server{
		hub:      hub,
		registry: registry,
		db:       database,
	}
	s.exclusive.Store(exclusiveShow)

	statuses, err := database.GetChannelStatuses()
	if err != nil {
		return nil, err
	}
	registry.Restore(statuses)
	return s, nil
}

// Registry returns the channel registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// HandleWebSocket handles WebSocket connections.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[ws]upgrade failed: %v\n", err)
		return
	}

	client := s.hub.NewClient(conn)
	s.hub.Register(client)
	glog.V(1).Infof("[ws]new client %s connected, sending channels data\n", client.ID())

	// every (re)connection starts with the full directory
	client.SendEnvelope(protocol.TypeChannelsData, protocol.ChannelsDataMessage{
		Channels: s.registry.Snapshot(),
	})

	go s.writePump(client)
	s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(65536)
	client.Conn().SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				glog.Infof("[ws]error: %v\n", err)
			}
			break
		}
		client.Conn().SetReadDeadline(time.Now().Add(60 * time.Second))

		s.handleMessage(client, message)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(client *Client, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		client.SendError(protocol.ErrCodeInvalidMsg, "Invalid message format")
		return
	}

	switch env.Type {
	case protocol.TypeJoinChannel, protocol.TypeLeaveChannel:
		msg, err := protocol.DecodeChannelMessage(env.Type, env.Data)
		if err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, err.Error())
			return
		}
		ch, err := s.registry.Get(msg.Channel)
		if err != nil {
			client.SendError(protocol.ErrCodeNotFound, string(env.Type)+" called with unknown channel slug "+msg.Channel)
			return
		}
		if env.Type == protocol.TypeJoinChannel {
			s.hub.Join(client, ch.Slug())
			glog.Infof("[ws]session %s joined channel %q [%s]\n", client.ID(), ch.Name(), ch.Slug())
			client.SendEnvelope(protocol.TypeChannelStatus, statusMessage(ch.Slug(), ch.Status()))
		} else {
			s.hub.Leave(client, ch.Slug())
			glog.Infof("[ws]session %s left channel %q [%s]\n", client.ID(), ch.Name(), ch.Slug())
		}

	case protocol.TypeShowLowerThird:
		msg, err := protocol.DecodeShowRequest(env.Data)
		if err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, err.Error())
			return
		}
		_, err = s.ShowLowerThird(msg.Channel, msg.LowerThird())
		s.reply(client, env.Type, msg.Channel, err)

	case protocol.TypeHideLowerThird, protocol.TypeKillLowerThird:
		msg, err := protocol.DecodeChannelMessage(env.Type, env.Data)
		if err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, err.Error())
			return
		}
		if env.Type == protocol.TypeHideLowerThird {
			err = s.HideLowerThird(msg.Channel)
		} else {
			err = s.KillLowerThird(msg.Channel)
		}
		s.reply(client, env.Type, msg.Channel, err)

	default:
		client.SendError(protocol.ErrCodeInvalidMsg, "Unknown message type")
	}
}

func (s *Server) reply(client *Client, request protocol.MessageType, slug string, err error) {
	switch {
	case err == nil:
		client.SendEnvelope(protocol.TypeAck, protocol.AckMessage{Request: request, Channel: slug, Status: "success"})
	case errors.Is(err, ErrUnknownChannel):
		client.SendError(protocol.ErrCodeNotFound, string(request)+" called with unknown channel slug "+slug)
	case errors.Is(err, ErrConcurrency):
		client.SendError(protocol.ErrCodeConcurrency, "Another lower third is already being displayed.")
	default:
		client.SendError(protocol.ErrCodeInternal, err.Error())
	}
}

func statusMessage(slug string, status *models.ChannelStatus) protocol.ChannelStatusMessage {
	return protocol.ChannelStatusMessage{
		Channel:           slug,
		LowerThirdVisible: status.LowerThirdVisible,
		CurrentLowerThird: status.CurrentLowerThird,
	}
}

// ShowLowerThird shows lt on a channel. The lower third gets a fresh id,
// which is returned with the stored copy.
func (s *Server) ShowLowerThird(slug string, lt *models.LowerThird) (*models.LowerThird, error) {
	ch, err := s.registry.Get(slug)
	if err != nil {
		return nil, err
	}
	lt = lt.Clone()
	lt.ID = uuid.New().String()

	status, err := ch.show(lt, s.exclusive.Load())
	if err != nil {
		return nil, err
	}
	duration := -1.0
	if lt.Duration != nil {
		duration = *lt.Duration
	}
	glog.Infof("[channel]showing lower third in channel %q [%s] design=%q title=%q subtitle=%q duration=%0.3f\n",
		ch.Name(), slug, lt.Design, lt.Title, lt.SubtitleOrEmpty(), duration)

	s.record(slug, models.ActionShow, lt, status)
	s.hub.BroadcastRoom(slug, protocol.TypeShowLowerThird, protocol.NewShowLowerThirdMessage(slug, lt))
	s.hub.BroadcastRoom(slug, protocol.TypeChannelStatus, statusMessage(slug, status))
	return lt, nil
}

// HideLowerThird hides a channel's lower third.
func (s *Server) HideLowerThird(slug string) error {
	return s.clear(slug, models.ActionHide, protocol.TypeHideLowerThird)
}

// KillLowerThird removes a channel's lower third without any transition.
func (s *Server) KillLowerThird(slug string) error {
	return s.clear(slug, models.ActionKill, protocol.TypeKillLowerThird)
}

func (s *Server) clear(slug string, action models.HistoryAction, msgType protocol.MessageType) error {
	ch, err := s.registry.Get(slug)
	if err != nil {
		return err
	}
	status := ch.clear()
	glog.Infof("[channel]%s lower third in channel %q [%s]\n", action, ch.Name(), slug)

	s.record(slug, action, nil, status)
	s.hub.BroadcastRoom(slug, msgType, protocol.ChannelMessage{Channel: slug})
	s.hub.BroadcastRoom(slug, protocol.TypeChannelStatus, statusMessage(slug, status))
	return nil
}

// record persists the new status and the history entry. Failures are
// logged; the live state has already changed.
func (s *Server) record(slug string, action models.HistoryAction, lt *models.LowerThird, status *models.ChannelStatus) {
	if err := s.db.SaveChannelStatus(slug, status); err != nil {
		glog.Errorf("[db]failed to save status of %s: %v\n", slug, err)
	}
	if _, err := s.db.AppendHistory(slug, action, lt); err != nil {
		glog.Errorf("[db]failed to record %s on %s: %v\n", action, slug, err)
	}
}

// History returns the most recent entries of a channel.
func (s *Server) History(slug string, limit int, before string) ([]models.HistoryEntry, error) {
	if _, err := s.registry.Get(slug); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.db.GetHistory(slug, limit, before)
}

// ReloadClients tells every connected page to reload.
func (s *Server) ReloadClients() {
	glog.Infof("[ws]requesting reload of %d clients\n", len(s.hub.Clients()))
	s.hub.BroadcastAll(protocol.TypeReloadClient, nil)
}

// ReloadConfig applies a re-read settings file: the channel list is
// replaced and every client gets the new directory.
func (s *Server) ReloadConfig(cfg *config.Config) {
	removed := s.registry.Replace(cfg.Channels)
	s.exclusive.Store(cfg.ExclusiveShow)
	for _, slug := range removed {
		if err := s.db.DeleteChannelStatus(slug); err != nil {
			glog.Errorf("[db]failed to forget %s: %v\n", slug, err)
		}
	}
	glog.Infof("[channel]configuration reloaded, %d channels, removed %v\n", len(cfg.Channels), removed)
	s.hub.BroadcastAll(protocol.TypeChannelsData, protocol.ChannelsDataMessage{
		Channels: s.registry.Snapshot(),
	})
}
