package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/lowerthirds/lowerthirds/client"
	"github.com/lowerthirds/lowerthirds/internal/models"
)

func main() {
	serverURL := pflag.String("server", "http://localhost:5000", "server base url")
	mode := pflag.String("mode", string(client.ModePlayout), "client mode: control or playout")
	channel := pflag.String("channel", "", "channel slug to play out (playout mode)")
	fragment := pflag.String("fragment", "", "url fragment naming the channel to control, e.g. #news (control mode)")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	defer glog.Flush()

	parsedMode, err := client.ParseMode(*mode)
	if err != nil {
		glog.Exitf("%v", err)
	}

	transport, err := client.NewTransport(*serverURL, client.DefaultTransportSettings())
	if err != nil {
		glog.Exitf("Invalid server url: %v", err)
	}

	session, err := client.NewSession(client.SessionOptions{
		Mode:             parsedMode,
		Fragment:         client.StaticAddress(*fragment),
		ChannelAttribute: client.StaticAddress(*channel),
		Emitter:          transport,
		Renderer:         newConsoleRenderer(os.Stdout),
	})
	if err != nil {
		glog.Exitf("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if parsedMode == client.ModeControl {
		go readCommands(ctx, session, os.Stdin)
	}

	glog.Infof("[main]%s client connecting to %s\n", parsedMode, transport.URL())
	if err := transport.Run(ctx, session); err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("[main]transport stopped: %v\n", err)
	}
}

// readCommands turns stdin lines into control requests:
//
//	show <design> <title>[ | <subtitle>[ | <duration>]]
//	hide
//	kill
func readCommands(ctx context.Context, session *client.Session, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var err error
		switch cmd, rest, _ := strings.Cut(line, " "); cmd {
		case "show":
			var lt *models.LowerThird
			lt, err = parseShow(rest)
			if err == nil {
				err = session.Show(lt)
			}
		case "hide":
			err = session.Hide()
		case "kill":
			err = session.Kill()
		default:
			err = fmt.Errorf("unknown command %q", cmd)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func parseShow(args string) (*models.LowerThird, error) {
	parts := strings.Split(args, "|")
	design, title, ok := strings.Cut(strings.TrimSpace(parts[0]), " ")
	if !ok || design == "" || strings.TrimSpace(title) == "" {
		return nil, errors.New("usage: show <design> <title>[ | <subtitle>[ | <duration>]]")
	}
	lt := &models.LowerThird{Design: design, Title: strings.TrimSpace(title)}
	if len(parts) > 1 {
		subtitle := strings.TrimSpace(parts[1])
		lt.Subtitle = &subtitle
	}
	if len(parts) > 2 {
		if raw := strings.TrimSpace(parts[2]); raw != "" {
			seconds, err := strconv.ParseFloat(raw, 64)
			if err != nil || seconds < 0 {
				return nil, fmt.Errorf("invalid duration %q", raw)
			}
			lt.Duration = &seconds
		}
	}
	if len(parts) > 3 {
		return nil, errors.New("too many fields")
	}
	return lt, nil
}
