package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lowerthirds/lowerthirds/internal/models"
	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

// AdminHandler serves the operator HTTP API.
type AdminHandler struct {
	server *Server
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(server *Server) *AdminHandler {
	return &AdminHandler{server: server}
}

// RegisterRoutes mounts the API on r.
func (a *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/channels", a.listChannels)
	r.Route("/channels/{slug}", func(r chi.Router) {
		r.Get("/", a.getChannel)
		r.Post("/show", a.show)
		r.Post("/hide", a.hide)
		r.Post("/kill", a.kill)
		r.Get("/history", a.history)
	})
	r.Post("/reload", a.reload)
}

// ChannelView is a channel with its live status.
type ChannelView struct {
	Name   string                `json:"name"`
	Slug   string                `json:"slug"`
	Status *models.ChannelStatus `json:"status"`
}

func channelView(ch *Channel) ChannelView {
	return ChannelView{Name: ch.Name(), Slug: ch.Slug(), Status: ch.Status()}
}

func (a *AdminHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (a *AdminHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	a.writeJSON(w, status, protocol.ErrorMessage{Code: code, Message: message})
}

func (a *AdminHandler) writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownChannel):
		a.writeError(w, http.StatusNotFound, protocol.ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrConcurrency):
		a.writeError(w, http.StatusConflict, protocol.ErrCodeConcurrency, "Another lower third is already being displayed.")
	default:
		a.writeError(w, http.StatusInternalServerError, protocol.ErrCodeInternal, err.Error())
	}
}

func (a *AdminHandler) listChannels(w http.ResponseWriter, r *http.Request) {
	channels := a.server.Registry().List()
	views := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, channelView(ch))
	}
	a.writeJSON(w, http.StatusOK, views)
}

func (a *AdminHandler) getChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := a.server.Registry().Get(chi.URLParam(r, "slug"))
	if err != nil {
		a.writeActionError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, channelView(ch))
}

func (a *AdminHandler) show(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidMsg, "Invalid request body")
		return
	}
	// the channel comes from the path; the body is checked like a websocket request
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		a.writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidMsg, "Invalid request body")
		return
	}
	fields["channel"] = json.RawMessage(strconv.Quote(slug))
	raw, err := json.Marshal(fields)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, protocol.ErrCodeInternal, err.Error())
		return
	}

	msg, err := protocol.DecodeShowRequest(raw)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, protocol.ErrCodeInvalidMsg, err.Error())
		return
	}
	lt, err := a.server.ShowLowerThird(slug, msg.LowerThird())
	if err != nil {
		a.writeActionError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, lt)
}

func (a *AdminHandler) hide(w http.ResponseWriter, r *http.Request) {
	if err := a.server.HideLowerThird(chi.URLParam(r, "slug")); err != nil {
		a.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *AdminHandler) kill(w http.ResponseWriter, r *http.Request) {
	if err := a.server.KillLowerThird(chi.URLParam(r, "slug")); err != nil {
		a.writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *AdminHandler) history(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.server.History(chi.URLParam(r, "slug"), limit, r.URL.Query().Get("before"))
	if err != nil {
		a.writeActionError(w, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *AdminHandler) reload(w http.ResponseWriter, r *http.Request) {
	a.server.ReloadClients()
	w.WriteHeader(http.StatusNoContent)
}
