package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lowerthirds/lowerthirds/internal/models"
)

// ErrInvalidPayload is wrapped by every decode failure.
var ErrInvalidPayload = errors.New("invalid payload")

func invalid(what string, format string, a ...any) error {
	return fmt.Errorf("%s: %s: %w", what, fmt.Sprintf(format, a...), ErrInvalidPayload)
}

// object is a JSON object whose values are decoded on demand, so that a
// payload can be checked key by key before it is trusted.
type object map[string]json.RawMessage

func decodeObject(what string, data json.RawMessage) (object, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, invalid(what, "missing data")
	}
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, invalid(what, "expects an object")
	}
	return obj, nil
}

func (o object) require(what string, keys ...string) error {
	for _, key := range keys {
		if _, ok := o[key]; !ok {
			return invalid(what, "needs at least the keys %s", strings.Join(keys, ", "))
		}
	}
	return nil
}

func (o object) null(key string) bool {
	raw, ok := o[key]
	return !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (o object) str(what string, key string) (string, error) {
	if o.null(key) {
		return "", invalid(what, "%s must be a string", key)
	}
	var s string
	if err := json.Unmarshal(o[key], &s); err != nil {
		return "", invalid(what, "%s must be a string", key)
	}
	return s, nil
}

func (o object) optionalStr(what string, key string) (*string, error) {
	if o.null(key) {
		return nil, nil
	}
	s, err := o.str(what, key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (o object) channel(what string) (string, error) {
	if err := o.require(what, "channel"); err != nil {
		return "", err
	}
	slug, err := o.str(what, "channel")
	if err != nil {
		return "", err
	}
	if slug == "" {
		return "", invalid(what, "channel must not be empty")
	}
	return slug, nil
}

// duration accepts null, a number or a numeric string. An empty string is
// treated as absent. Zero is a valid duration.
func (o object) duration(what string) (*float64, error) {
	if o.null("duration") {
		return nil, nil
	}
	raw := o["duration"]
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid(what, "duration must be a number")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		seconds, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalid(what, "duration must be a number")
		}
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return nil, invalid(what, "duration must be a non-negative number")
	}
	return &seconds, nil
}

// DecodeChannelsData validates a channels_data payload. Every entry must be
// stored under its own slug.
func DecodeChannelsData(data json.RawMessage) (*ChannelsDataMessage, error) {
	const what = string(TypeChannelsData)
	obj, err := decodeObject(what, data)
	if err != nil {
		return nil, err
	}
	if err := obj.require(what, "channels"); err != nil {
		return nil, err
	}
	entries, err := decodeObject(what, obj["channels"])
	if err != nil {
		return nil, invalid(what, "channels must be an object")
	}

	msg := &ChannelsDataMessage{Channels: make(map[string]models.ChannelInfo, len(entries))}
	for key, raw := range entries {
		entry, err := decodeObject(what, raw)
		if err != nil {
			return nil, invalid(what, "channel %q must be an object", key)
		}
		if err := entry.require(what, "name", "slug"); err != nil {
			return nil, err
		}
		name, err := entry.str(what, "name")
		if err != nil {
			return nil, err
		}
		slug, err := entry.str(what, "slug")
		if err != nil {
			return nil, err
		}
		if key == "" || slug != key {
			return nil, invalid(what, "channel %q carries slug %q", key, slug)
		}
		msg.Channels[key] = models.ChannelInfo{Name: name, Slug: slug}
	}
	return msg, nil
}

// DecodeChannelMessage validates a payload that only names a channel.
func DecodeChannelMessage(msgType MessageType, data json.RawMessage) (*ChannelMessage, error) {
	what := string(msgType)
	obj, err := decodeObject(what, data)
	if err != nil {
		return nil, err
	}
	slug, err := obj.channel(what)
	if err != nil {
		return nil, err
	}
	return &ChannelMessage{Channel: slug}, nil
}

// DecodeChannelStatus validates a channel_status payload.
func DecodeChannelStatus(data json.RawMessage) (*ChannelStatusMessage, error) {
	const what = string(TypeChannelStatus)
	obj, err := decodeObject(what, data)
	if err != nil {
		return nil, err
	}
	slug, err := obj.channel(what)
	if err != nil {
		return nil, err
	}
	if err := obj.require(what, "channel", "lower_third_visible", "current_lower_third"); err != nil {
		return nil, err
	}
	msg := &ChannelStatusMessage{Channel: slug}
	if err := json.Unmarshal(obj["lower_third_visible"], &msg.LowerThirdVisible); err != nil || obj.null("lower_third_visible") {
		return nil, invalid(what, "lower_third_visible must be a boolean")
	}
	if !obj.null("current_lower_third") {
		lt, err := decodeObject(what, obj["current_lower_third"])
		if err != nil {
			return nil, invalid(what, "current_lower_third must be an object or null")
		}
		msg.CurrentLowerThird, err = lt.lowerThird(what, false)
		if err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func (o object) lowerThird(what string, requireSubtitle bool) (*models.LowerThird, error) {
	keys := []string{"design", "title"}
	if requireSubtitle {
		keys = append(keys, "subtitle")
	}
	if err := o.require(what, keys...); err != nil {
		return nil, err
	}
	lt := &models.LowerThird{}
	var err error
	if lt.Design, err = o.str(what, "design"); err != nil {
		return nil, err
	}
	if lt.Title, err = o.str(what, "title"); err != nil {
		return nil, err
	}
	if lt.Subtitle, err = o.optionalStr(what, "subtitle"); err != nil {
		return nil, err
	}
	if lt.Duration, err = o.duration(what); err != nil {
		return nil, err
	}
	if id, err := o.optionalStr(what, "id"); err != nil {
		return nil, err
	} else if id != nil {
		lt.ID = *id
	}
	return lt, nil
}

// DecodeShowLowerThird validates a show_lower_third broadcast as received
// by clients. subtitle, duration and id may be absent.
func DecodeShowLowerThird(data json.RawMessage) (*ShowLowerThirdMessage, error) {
	return decodeShow(data, false)
}

// DecodeShowRequest validates a show_lower_third request as received by the
// server. The subtitle key must be present, though it may be null.
func DecodeShowRequest(data json.RawMessage) (*ShowLowerThirdMessage, error) {
	return decodeShow(data, true)
}

func decodeShow(data json.RawMessage, request bool) (*ShowLowerThirdMessage, error) {
	const what = string(TypeShowLowerThird)
	obj, err := decodeObject(what, data)
	if err != nil {
		return nil, err
	}
	slug, err := obj.channel(what)
	if err != nil {
		return nil, err
	}
	lt, err := obj.lowerThird(what, request)
	if err != nil {
		return nil, err
	}
	if request {
		// ids are assigned by the server
		lt.ID = ""
	}
	msg := NewShowLowerThirdMessage(slug, lt)
	return &msg, nil
}

// DecodeError decodes an error envelope payload.
func DecodeError(data json.RawMessage) (*ErrorMessage, error) {
	var msg ErrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, invalid(string(TypeError), "%v", err)
	}
	return &msg, nil
}

// DecodeAck decodes an ack envelope payload.
func DecodeAck(data json.RawMessage) (*AckMessage, error) {
	var msg AckMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, invalid(string(TypeAck), "%v", err)
	}
	return &msg, nil
}
