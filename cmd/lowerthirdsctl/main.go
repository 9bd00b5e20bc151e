package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/lowerthirds/lowerthirds/internal/models"
	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

const LowerThirdsCtlVersion = "0.1.0"

const defaultServerURL = "http://localhost:5000"

func main() {
	usage := fmt.Sprintf(`Lower thirds control.

The default server url is %s.

Usage:
    lowerthirdsctl channels [--server=<server>]
    lowerthirdsctl status [--server=<server>] <channel>
    lowerthirdsctl show [--server=<server>] <channel> <design> <title>
        [--subtitle=<subtitle>]
        [--duration=<seconds>]
    lowerthirdsctl hide [--server=<server>] <channel>
    lowerthirdsctl kill [--server=<server>] <channel>
    lowerthirdsctl history [--server=<server>] <channel>
        [--limit=<limit>]
        [--before=<id>]
    lowerthirdsctl reload [--server=<server>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --server=<server>        Server base url.
    --subtitle=<subtitle>    Second line of the lower third.
    --duration=<seconds>     Hide after this many seconds.
    --limit=<limit>          Print at most this many entries.
    --before=<id>            Only entries older than this entry id.`, defaultServerURL)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], LowerThirdsCtlVersion)
	if err != nil {
		panic(err)
	}

	ctl := newCtl(opts)

	if channels_, _ := opts.Bool("channels"); channels_ {
		err = ctl.channels()
	} else if status_, _ := opts.Bool("status"); status_ {
		err = ctl.status(opts)
	} else if show_, _ := opts.Bool("show"); show_ {
		err = ctl.show(opts)
	} else if hide_, _ := opts.Bool("hide"); hide_ {
		err = ctl.clear(opts, "hide")
	} else if kill_, _ := opts.Bool("kill"); kill_ {
		err = ctl.clear(opts, "kill")
	} else if history_, _ := opts.Bool("history"); history_ {
		err = ctl.history(opts)
	} else if reload_, _ := opts.Bool("reload"); reload_ {
		err = ctl.reload()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type channelView struct {
	Name   string                `json:"name"`
	Slug   string                `json:"slug"`
	Status *models.ChannelStatus `json:"status"`
}

type ctl struct {
	server string
	client *http.Client
	out    io.Writer
}

func newCtl(opts docopt.Opts) *ctl {
	server, _ := opts.String("--server")
	if server == "" {
		server = defaultServerURL
	}
	return &ctl{
		server: strings.TrimRight(server, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		out:    os.Stdout,
	}
}

func (c *ctl) channels() error {
	var views []channelView
	if err := c.do(http.MethodGet, "/api/channels", nil, &views); err != nil {
		return err
	}
	for _, view := range views {
		fmt.Fprintf(c.out, "%s\t%s\t%s\n", view.Slug, view.Name, describe(view.Status))
	}
	return nil
}

func (c *ctl) status(opts docopt.Opts) error {
	channel, _ := opts.String("<channel>")
	var view channelView
	if err := c.do(http.MethodGet, "/api/channels/"+url.PathEscape(channel), nil, &view); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\t%s\t%s\n", view.Slug, view.Name, describe(view.Status))
	return nil
}

func (c *ctl) show(opts docopt.Opts) error {
	channel, _ := opts.String("<channel>")
	design, _ := opts.String("<design>")
	title, _ := opts.String("<title>")

	body := map[string]interface{}{
		"design":   design,
		"title":    title,
		"subtitle": nil,
	}
	if subtitle, err := opts.String("--subtitle"); err == nil && subtitle != "" {
		body["subtitle"] = subtitle
	}
	if raw, err := opts.String("--duration"); err == nil && raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		body["duration"] = seconds
	}

	var lt models.LowerThird
	if err := c.do(http.MethodPost, "/api/channels/"+url.PathEscape(channel)+"/show", body, &lt); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\n", lt.ID)
	return nil
}

func (c *ctl) clear(opts docopt.Opts, action string) error {
	channel, _ := opts.String("<channel>")
	return c.do(http.MethodPost, "/api/channels/"+url.PathEscape(channel)+"/"+action, nil, nil)
}

func (c *ctl) history(opts docopt.Opts) error {
	channel, _ := opts.String("<channel>")
	query := url.Values{}
	if limit, err := opts.String("--limit"); err == nil && limit != "" {
		query.Set("limit", limit)
	}
	if before, err := opts.String("--before"); err == nil && before != "" {
		query.Set("before", before)
	}
	path := "/api/channels/" + url.PathEscape(channel) + "/history"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var entries []models.HistoryEntry
	if err := c.do(http.MethodGet, path, nil, &entries); err != nil {
		return err
	}
	for _, entry := range entries {
		line := fmt.Sprintf("%s\t%s\t%s", entry.ID, entry.Timestamp.Local().Format(time.RFC3339), entry.Action)
		if entry.LowerThird != nil {
			line += fmt.Sprintf("\t%s\t%s", entry.LowerThird.Design, entry.LowerThird.Title)
		}
		fmt.Fprintln(c.out, line)
	}
	return nil
}

func (c *ctl) reload() error {
	return c.do(http.MethodPost, "/api/reload", nil, nil)
}

func (c *ctl) do(method, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var failure protocol.ErrorMessage
		if err := json.NewDecoder(res.Body).Decode(&failure); err == nil && failure.Message != "" {
			return fmt.Errorf("%s: %s", failure.Code, failure.Message)
		}
		return fmt.Errorf("%s %s: %s", method, path, res.Status)
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(result)
}

func describe(status *models.ChannelStatus) string {
	if status == nil || status.CurrentLowerThird == nil {
		return "empty"
	}
	state := "hidden"
	if status.LowerThirdVisible {
		state = "visible"
	}
	return fmt.Sprintf("%s %s %q", state, status.CurrentLowerThird.Design, status.CurrentLowerThird.Title)
}
