package server

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/lowerthirds/lowerthirds/internal/config"
	"github.com/lowerthirds/lowerthirds/internal/db"
	"github.com/lowerthirds/lowerthirds/internal/models"
	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

type showRequest struct {
	Channel  string   `json:"channel"`
	Design   string   `json:"design"`
	Title    string   `json:"title"`
	Subtitle *string  `json:"subtitle"`
	Duration *float64 `json:"duration"`
}

func TestServer_ChannelsDataOnConnect(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t)

	var msg protocol.ChannelsDataMessage
	decode(t, readUntil(t, conn, protocol.TypeChannelsData), &msg)
	assert.Equal(t, msg.Channels, map[string]models.ChannelInfo{
		"news":   {Name: "News", Slug: "news"},
		"sports": {Name: "Sports", Slug: "sports"},
	})
}

func TestServer_JoinRepliesWithStatus(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t)
	readUntil(t, conn, protocol.TypeChannelsData)

	send(t, conn, protocol.TypeJoinChannel, protocol.ChannelMessage{Channel: "news"})

	var status protocol.ChannelStatusMessage
	decode(t, readUntil(t, conn, protocol.TypeChannelStatus), &status)
	assert.Equal(t, status.Channel, "news")
	assert.Equal(t, status.LowerThirdVisible, false)
	assert.Equal(t, status.CurrentLowerThird == nil, true)
	assert.Equal(t, env.hub.RoomSize("news"), 1)

	send(t, conn, protocol.TypeJoinChannel, protocol.ChannelMessage{Channel: "weather"})
	var failure protocol.ErrorMessage
	decode(t, readUntil(t, conn, protocol.TypeError), &failure)
	assert.Equal(t, failure.Code, protocol.ErrCodeNotFound)
}

func TestServer_ShowBroadcastsToRoom(t *testing.T) {
	env := newTestEnv(t, false)

	control := env.dial(t)
	readUntil(t, control, protocol.TypeChannelsData)

	playout := env.dial(t)
	readUntil(t, playout, protocol.TypeChannelsData)
	send(t, playout, protocol.TypeJoinChannel, protocol.ChannelMessage{Channel: "news"})
	readUntil(t, playout, protocol.TypeChannelStatus)

	other := env.dial(t)
	readUntil(t, other, protocol.TypeChannelsData)
	send(t, other, protocol.TypeJoinChannel, protocol.ChannelMessage{Channel: "sports"})
	readUntil(t, other, protocol.TypeChannelStatus)

	subtitle := "Reporter"
	duration := 8.0
	send(t, control, protocol.TypeShowLowerThird, showRequest{
		Channel: "news", Design: "red", Title: "Jane Doe", Subtitle: &subtitle, Duration: &duration,
	})

	var ack protocol.AckMessage
	decode(t, readUntil(t, control, protocol.TypeAck), &ack)
	assert.Equal(t, ack.Request, protocol.TypeShowLowerThird)
	assert.Equal(t, ack.Status, "success")

	var show protocol.ShowLowerThirdMessage
	decode(t, readUntil(t, playout, protocol.TypeShowLowerThird), &show)
	assert.Equal(t, show.Channel, "news")
	assert.Equal(t, show.Title, "Jane Doe")
	assert.Equal(t, *show.Subtitle, "Reporter")
	assert.Equal(t, *show.Duration, 8.0)
	assert.NotEqual(t, show.ID, "")

	var status protocol.ChannelStatusMessage
	decode(t, readUntil(t, playout, protocol.TypeChannelStatus), &status)
	assert.Equal(t, status.LowerThirdVisible, true)
	assert.Equal(t, status.CurrentLowerThird.ID, show.ID)

	// not in the room
	expectSilence(t, other, 200*time.Millisecond)
}

func TestServer_HideAndKill(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t)
	readUntil(t, conn, protocol.TypeChannelsData)
	send(t, conn, protocol.TypeJoinChannel, protocol.ChannelMessage{Channel: "news"})
	readUntil(t, conn, protocol.TypeChannelStatus)

	send(t, conn, protocol.TypeShowLowerThird, showRequest{Channel: "news", Design: "red", Title: "Jane"})
	readUntil(t, conn, protocol.TypeShowLowerThird)
	readUntil(t, conn, protocol.TypeChannelStatus)

	send(t, conn, protocol.TypeHideLowerThird, protocol.ChannelMessage{Channel: "news"})
	var hide protocol.ChannelMessage
	decode(t, readUntil(t, conn, protocol.TypeHideLowerThird), &hide)
	assert.Equal(t, hide.Channel, "news")

	var status protocol.ChannelStatusMessage
	decode(t, readUntil(t, conn, protocol.TypeChannelStatus), &status)
	assert.Equal(t, status.LowerThirdVisible, false)
	assert.Equal(t, status.CurrentLowerThird == nil, true)

	send(t, conn, protocol.TypeKillLowerThird, protocol.ChannelMessage{Channel: "news"})
	readUntil(t, conn, protocol.TypeKillLowerThird)

	entries, err := env.server.History("news", 0, "")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(entries), 3)
	assert.Equal(t, entries[0].Action, models.ActionShow)
	assert.Equal(t, entries[1].Action, models.ActionHide)
	assert.Equal(t, entries[2].Action, models.ActionKill)
}

func TestServer_RejectsMalformedRequests(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t)
	readUntil(t, conn, protocol.TypeChannelsData)

	frames := []string{
		`not json`,
		`{"type":"show_lower_third","data":{"channel":"news","design":"red","title":"x"}}`,
		`{"type":"hide_lower_third","data":{"channel":""}}`,
		`{"type":"dance","data":{}}`,
	}
	for _, frame := range frames {
		sendRaw(t, conn, frame)
		var failure protocol.ErrorMessage
		decode(t, readUntil(t, conn, protocol.TypeError), &failure)
		assert.Equal(t, failure.Code, protocol.ErrCodeInvalidMsg)
	}

	send(t, conn, protocol.TypeKillLowerThird, protocol.ChannelMessage{Channel: "weather"})
	var failure protocol.ErrorMessage
	decode(t, readUntil(t, conn, protocol.TypeError), &failure)
	assert.Equal(t, failure.Code, protocol.ErrCodeNotFound)
}

func TestServer_ExclusiveShow(t *testing.T) {
	env := newTestEnv(t, true)

	_, err := env.server.ShowLowerThird("news", &models.LowerThird{Design: "red", Title: "First"})
	assert.Equal(t, err, nil)

	_, err = env.server.ShowLowerThird("news", &models.LowerThird{Design: "red", Title: "Second"})
	assert.Equal(t, err, ErrConcurrency)

	// other channels are independent
	_, err = env.server.ShowLowerThird("sports", &models.LowerThird{Design: "red", Title: "Score"})
	assert.Equal(t, err, nil)

	assert.Equal(t, env.server.HideLowerThird("news"), nil)
	_, err = env.server.ShowLowerThird("news", &models.LowerThird{Design: "red", Title: "Second"})
	assert.Equal(t, err, nil)
}

func TestServer_NonExclusiveReplaces(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.server.ShowLowerThird("news", &models.LowerThird{Design: "red", Title: "First"})
	assert.Equal(t, err, nil)
	second, err := env.server.ShowLowerThird("news", &models.LowerThird{Design: "red", Title: "Second"})
	assert.Equal(t, err, nil)

	ch, _ := env.server.Registry().Get("news")
	assert.Equal(t, ch.Status().CurrentLowerThird.ID, second.ID)
}

func TestServer_RestoresStatusFromDatabase(t *testing.T) {
	database, err := db.NewServerDB("")
	assert.Equal(t, err, nil)
	defer database.Close()

	first := newTestEnvWithDB(t, database, false)
	shown, err := first.server.ShowLowerThird("news", &models.LowerThird{Design: "red", Title: "Jane"})
	assert.Equal(t, err, nil)

	second := newTestEnvWithDB(t, database, false)
	ch, _ := second.server.Registry().Get("news")
	status := ch.Status()
	assert.Equal(t, status.LowerThirdVisible, true)
	assert.Equal(t, status.CurrentLowerThird.ID, shown.ID)
}

func TestServer_ReloadConfigBroadcastsDirectory(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t)
	readUntil(t, conn, protocol.TypeChannelsData)

	env.server.ReloadConfig(&config.Config{
		Channels: []config.ChannelConfig{{Name: "News", Slug: "news"}, {Name: "Weather", Slug: "weather"}},
	})

	var msg protocol.ChannelsDataMessage
	decode(t, readUntil(t, conn, protocol.TypeChannelsData), &msg)
	assert.Equal(t, msg.Channels, map[string]models.ChannelInfo{
		"news":    {Name: "News", Slug: "news"},
		"weather": {Name: "Weather", Slug: "weather"},
	})

	_, err := env.server.Registry().Get("sports")
	assert.Equal(t, err, ErrUnknownChannel)
}

func TestServer_ReloadClients(t *testing.T) {
	env := newTestEnv(t, false)
	a := env.dial(t)
	b := env.dial(t)
	readUntil(t, a, protocol.TypeChannelsData)
	readUntil(t, b, protocol.TypeChannelsData)

	env.server.ReloadClients()
	readUntil(t, a, protocol.TypeReloadClient)
	readUntil(t, b, protocol.TypeReloadClient)
}
