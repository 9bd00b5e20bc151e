package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/lowerthirds/lowerthirds/internal/models"
	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestAdmin_ListChannels(t *testing.T) {
	env := newTestEnv(t, false)

	res, body := env.do(t, http.MethodGet, "/api/channels", "")
	assert.Equal(t, res.StatusCode, http.StatusOK)

	var views []ChannelView
	assert.Equal(t, json.Unmarshal(body, &views), nil)
	assert.Equal(t, len(views), 2)
	assert.Equal(t, views[0].Slug, "news")
	assert.Equal(t, views[1].Name, "Sports")
	assert.Equal(t, views[0].Status.LowerThirdVisible, false)

	res, _ = env.do(t, http.MethodGet, "/api/channels/weather", "")
	assert.Equal(t, res.StatusCode, http.StatusNotFound)
}

func TestAdmin_ShowHideKill(t *testing.T) {
	env := newTestEnv(t, false)

	res, body := env.do(t, http.MethodPost, "/api/channels/news/show",
		`{"design":"red","title":"Jane Doe","subtitle":"Reporter","duration":"5"}`)
	assert.Equal(t, res.StatusCode, http.StatusOK)

	var lt models.LowerThird
	assert.Equal(t, json.Unmarshal(body, &lt), nil)
	assert.NotEqual(t, lt.ID, "")
	assert.Equal(t, *lt.Duration, 5.0)

	res, body = env.do(t, http.MethodGet, "/api/channels/news", "")
	assert.Equal(t, res.StatusCode, http.StatusOK)
	var view ChannelView
	assert.Equal(t, json.Unmarshal(body, &view), nil)
	assert.Equal(t, view.Status.LowerThirdVisible, true)
	assert.Equal(t, view.Status.CurrentLowerThird.Title, "Jane Doe")

	res, _ = env.do(t, http.MethodPost, "/api/channels/news/hide", "")
	assert.Equal(t, res.StatusCode, http.StatusNoContent)
	res, _ = env.do(t, http.MethodPost, "/api/channels/news/kill", "")
	assert.Equal(t, res.StatusCode, http.StatusNoContent)

	res, body = env.do(t, http.MethodGet, "/api/channels/news/history", "")
	assert.Equal(t, res.StatusCode, http.StatusOK)
	var entries []models.HistoryEntry
	assert.Equal(t, json.Unmarshal(body, &entries), nil)
	assert.Equal(t, len(entries), 3)
	assert.Equal(t, entries[0].LowerThird.Title, "Jane Doe")

	res, body = env.do(t, http.MethodGet, "/api/channels/news/history?limit=1", "")
	assert.Equal(t, res.StatusCode, http.StatusOK)
	var latest []models.HistoryEntry
	assert.Equal(t, json.Unmarshal(body, &latest), nil)
	assert.Equal(t, len(latest), 1)
	assert.Equal(t, latest[0].Action, models.ActionKill)
	assert.Equal(t, latest[0].LowerThird == nil, true)
}

func TestAdmin_ShowErrors(t *testing.T) {
	env := newTestEnv(t, true)

	res, body := env.do(t, http.MethodPost, "/api/channels/news/show", `{"design":"red"}`)
	assert.Equal(t, res.StatusCode, http.StatusBadRequest)
	var failure protocol.ErrorMessage
	assert.Equal(t, json.Unmarshal(body, &failure), nil)
	assert.Equal(t, failure.Code, protocol.ErrCodeInvalidMsg)

	res, _ = env.do(t, http.MethodPost, "/api/channels/news/show", `[]`)
	assert.Equal(t, res.StatusCode, http.StatusBadRequest)

	show := `{"design":"red","title":"Jane","subtitle":null}`
	res, _ = env.do(t, http.MethodPost, "/api/channels/weather/show", show)
	assert.Equal(t, res.StatusCode, http.StatusNotFound)

	res, _ = env.do(t, http.MethodPost, "/api/channels/news/show", show)
	assert.Equal(t, res.StatusCode, http.StatusOK)
	res, body = env.do(t, http.MethodPost, "/api/channels/news/show", show)
	assert.Equal(t, res.StatusCode, http.StatusConflict)
	assert.Equal(t, json.Unmarshal(body, &failure), nil)
	assert.Equal(t, failure.Code, protocol.ErrCodeConcurrency)
}

func TestAdmin_Reload(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t)
	readUntil(t, conn, protocol.TypeChannelsData)

	res, _ := env.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, res.StatusCode, http.StatusNoContent)
	readUntil(t, conn, protocol.TypeReloadClient)
}

func TestPages(t *testing.T) {
	env := newTestEnv(t, false)

	res, body := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, res.StatusCode, http.StatusOK)
	assert.Equal(t, strings.Contains(string(body), `href="#news"`), true)

	res, body = env.do(t, http.MethodGet, "/playout/sports", "")
	assert.Equal(t, res.StatusCode, http.StatusOK)
	assert.Equal(t, strings.Contains(string(body), `data-channel="sports"`), true)

	res, _ = env.do(t, http.MethodGet, "/playout/weather", "")
	assert.Equal(t, res.StatusCode, http.StatusNotFound)
}
