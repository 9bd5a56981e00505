package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"slackrelay/internal/config"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
)

// slackChecker is the part of the Slack API the doctor uses.
type slackChecker interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks against configuration and Slack",
		Long: `Verifies that slackrelay's configuration is complete, that the bot token
is accepted by Slack, that the bot can post to the relay channel and that the
HTTP port is free. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "slackrelay doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			cfg, err := loadConfig()
			if err != nil {
				printFail(out, "Config", err.Error())
				return fmt.Errorf("configuration could not be loaded")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			api := slack.New(cfg.Slack.BotToken)
			r := runChecks(ctx, cfg, api, out)

			fmt.Fprintf(out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
}

type checkResults struct {
	passed, warned, failed int
}

func runChecks(ctx context.Context, cfg *config.Config, api slackChecker, out io.Writer) checkResults {
	var r checkResults
	pass := func(check, detail string) { printPass(out, check, detail); r.passed++ }
	warn := func(check, detail string) { printWarn(out, check, detail); r.warned++ }
	fail := func(check, detail string) { printFail(out, check, detail); r.failed++ }

	pass("Config", "valid")

	if err := config.RequireCredentials(cfg); err != nil {
		fail("Credentials", err.Error())
		return r
	}
	pass("Credentials", "bot token and channel set")

	if cfg.Webhook.APIKey == "" {
		warn("Webhook key", "WEBHOOK_API_KEY not set, all callbacks will be rejected")
	} else {
		pass("Webhook key", "set")
	}
	if cfg.Slack.AppToken == "" {
		warn("Socket Mode", "SLACK_APP_TOKEN not set, DMs will not be relayed")
	} else {
		pass("Socket Mode", "app token set")
	}
	if cfg.Notify.ChannelID == "" {
		warn("Notifications", "NOTIFICATIONS_CHANNEL_ID not set, /api/notify will fail")
	} else {
		pass("Notifications", cfg.Notify.ChannelID)
	}

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		fail("Slack auth", err.Error())
		return r
	}
	pass("Slack auth", fmt.Sprintf("%s in %s", auth.User, auth.Team))

	ch, err := api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: cfg.Slack.ChannelID})
	switch {
	case err != nil:
		fail("Relay channel", err.Error())
	case !ch.IsMember && !ch.IsIM:
		fail("Relay channel", fmt.Sprintf("bot is not a member of #%s", ch.Name))
	default:
		pass("Relay channel", "#"+ch.Name)
	}

	if err := checkPort(cfg.Server.Addr()); err != nil {
		warn("HTTP port", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
	} else {
		pass("HTTP port", cfg.Server.Addr()+" available")
	}
	return r
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [PASS] %-20s %s\n", check, detail)
}

func printFail(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [WARN] %-20s %s\n", check, detail)
}
