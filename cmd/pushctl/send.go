package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/pushgate/internal/payload"
	"github.com/danmuck/pushgate/internal/protocol/wire"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type sendFlags struct {
	tokens  []string
	alert   string
	badge   int
	sound   string
	raw     string
	timeout time.Duration
}

func newSendCmd(root *rootOptions) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one payload to one or more device tokens",
		Example: `  pushctl send --config config.toml --token <hex> --alert "Hello" --badge 1
  pushctl send --token <hex> --payload '{"aps":{"alert":"Hi"},"order":42}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if f.timeout > 0 {
				cfg.Session.RequestTimeout = f.timeout
			}
			tokens, err := parseTokens(f.tokens)
			if err != nil {
				return err
			}
			p, err := f.payload(cmd)
			if err != nil {
				return err
			}
			log.Debug().Stringer("payload", p).Int("payload_bytes", p.Len()).Msg("send payload built")

			s, err := cfg.openSession(nil)
			if err != nil {
				return err
			}
			defer s.Close()

			payloads := make([]*payload.Payload, len(tokens))
			for i := range payloads {
				payloads[i] = p
			}
			fut, err := s.WritePayloads(tokens, payloads)
			if err != nil {
				return err
			}
			ack, err := fut.Wait(context.Background())
			if err != nil {
				return err
			}
			log.Info().Str("request_id", ack.RequestID).Int("bytes", ack.Bytes).Int("tokens", len(tokens)).Msg("notifications sent")
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d notification(s), %d bytes, request %s\n", len(tokens), ack.Bytes, ack.RequestID)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&f.tokens, "token", nil, "device token in hex (repeatable)")
	cmd.Flags().StringVar(&f.alert, "alert", "", "alert text")
	cmd.Flags().IntVar(&f.badge, "badge", 0, "badge number")
	cmd.Flags().StringVar(&f.sound, "sound", "", "sound name")
	cmd.Flags().StringVar(&f.raw, "payload", "", "raw JSON payload; replaces --alert/--badge/--sound")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "request timeout (default from config)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (f *sendFlags) payload(cmd *cobra.Command) (*payload.Payload, error) {
	if f.raw != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(f.raw), &m); err != nil {
			return nil, fmt.Errorf("send: --payload: %w", err)
		}
		return payload.FromMap(m)
	}
	var opts []payload.Option
	if f.alert != "" {
		opts = append(opts, payload.WithAlert(f.alert))
	}
	if cmd.Flags().Changed("badge") {
		opts = append(opts, payload.WithBadge(f.badge))
	}
	if f.sound != "" {
		opts = append(opts, payload.WithSound(f.sound))
	}
	if len(opts) == 0 {
		return nil, errors.New("send: one of --alert, --badge, --sound or --payload is required")
	}
	return payload.New(opts...)
}

func parseTokens(raw []string) ([]wire.Token, error) {
	if len(raw) == 0 {
		return nil, errors.New("send: at least one --token is required")
	}
	out := make([]wire.Token, 0, len(raw))
	for _, r := range raw {
		t, err := wire.ParseToken(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
