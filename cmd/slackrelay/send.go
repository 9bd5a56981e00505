package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"slackrelay/internal/config"
	"slackrelay/internal/domain"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		source string
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Relay one message through the retry engine and exit",
		Long:  "Formats and relays a single callback-style message, useful for checking credentials and channel membership.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.RequireCredentials(cfg); err != nil {
				return err
			}

			msg, err := cliMessage(strings.Join(args, " "), source, fields)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp(cfg, newLogger(cfg), appOptions{})
			res := a.service.Relay(ctx, msg)
			if !res.Delivered {
				return fmt.Errorf("relay failed after %d attempt(s): %s", res.Attempts, res.ErrorKind)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relayed to %s in %d attempt(s)\n", cfg.Slack.ChannelID, res.Attempts)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "source label shown in the relayed message")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "extra metadata as key=value (repeatable)")
	return cmd
}

// cliMessage builds a callback message the way the webhook would.
func cliMessage(text, source string, fields []string) (domain.Message, error) {
	msg := domain.Message{Source: domain.SourceCallback, Text: text}
	if source != "" {
		msg.Metadata = append(msg.Metadata, domain.Field{Key: "source", Value: source})
	}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return domain.Message{}, fmt.Errorf("invalid field %q, expected key=value", f)
		}
		msg.Metadata = append(msg.Metadata, domain.Field{Key: k, Value: v})
	}
	return msg, nil
}
