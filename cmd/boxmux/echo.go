package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/cmd/boxmux/cli"
	"github.com/progrium/boxmux/echo"
	"github.com/progrium/boxmux/peer"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/clon-go"
)

var (
	echoCodec    string
	echoInsecure bool
	echoTimeout  time.Duration
)

var echoCmd = &cli.Command{
	Usage: "echo <transport://[user:password@]address> [key=value ...]",
	Short: "send a box through an echo session",
	Long: `Connect to a boxmux server, open an echo session, send one box built
from the key=value arguments and print the box that comes back.

Values that are not strings are sent as JSON.`,
	Args: cli.MinArgs(1),
	Run: func(ctx context.Context, args []string) {
		log.SetOutput(os.Stderr)

		ep, err := parseEndpoint(args[0])
		fatal(err)

		out := box.New()
		if len(args) > 1 {
			parsed, err := clon.Parse(args[1:])
			fatal(err)
			out, err = boxFromArgs(parsed)
			fatal(err)
		}

		c, err := box.CodecFor(echoCodec)
		fatal(err)
		if echoInsecure {
			peer.QUICConfig = &tls.Config{InsecureSkipVerify: true}
		}

		ctx, cancel := context.WithTimeout(ctx, echoTimeout)
		defer cancel()

		p, err := peer.Dial(ctx, ep.transport, ep.addr, c, nil)
		fatal(err)
		defer p.Close()

		if ep.user != "" {
			_, err := p.Login(ctx, ep.user, ep.password)
			fatal(err)
		}

		rcv := &replyReceiver{replies: make(chan *box.Box, 1)}
		route, err := p.Connect(ctx, echo.Protocol, rcv)
		fatal(err)
		fatal(route.SendBox(out))

		select {
		case reply := <-rcv.replies:
			b, err := json.MarshalIndent(reply.Strings(), "", "  ")
			fatal(err)
			fmt.Println(string(b))
		case <-ctx.Done():
			fatal(ctx.Err())
		case <-p.Done():
			fatal(fmt.Errorf("connection closed: %w", p.Wait()))
		}
	},
}

func init() {
	echoCmd.Flags().StringVar(&echoCodec, "codec", box.CodecAMP, "box codec: amp, json or cbor")
	echoCmd.Flags().BoolVar(&echoInsecure, "insecure", false, "skip QUIC certificate verification")
	echoCmd.Flags().DurationVar(&echoTimeout, "timeout", 10*time.Second, "overall timeout")
}

type replyReceiver struct {
	replies chan *box.Box
}

func (r *replyReceiver) Start(router.Sender) {}
func (r *replyReceiver) Stop(error)          {}

func (r *replyReceiver) Receive(b *box.Box) {
	select {
	case r.replies <- b:
	default:
	}
}

// boxFromArgs converts parsed key=value arguments to a box in key order.
func boxFromArgs(parsed interface{}) (*box.Box, error) {
	m, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("arguments must be key=value pairs")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := box.New()
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			b.SetString(k, v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			b.Set(k, data)
		}
	}
	return b, b.Validate()
}
