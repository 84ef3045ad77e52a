package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/classbook/internal/config"
	"github.com/Shivanand-hulikatti/classbook/internal/logging"
	"github.com/Shivanand-hulikatti/classbook/internal/notify"
)

// newMailerCmd runs the relay that drains mail published with
// MAIL_TRANSPORT=amqp and delivers it through MailerSend.
func newMailerCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "mailer",
		Short: "Consume queued mail from RabbitMQ and deliver it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat).With("service", "classbook-mailer")

			var sender notify.Sender
			switch {
			case dryRun:
				sender = notify.LogSender{Log: log}
			case cfg.Mail.MailerSendAPIKey == "":
				return errors.New("MAILERSEND_API_KEY is required (or pass --dry-run)")
			default:
				sender = notify.NewMailerSend(cfg.Mail.MailerSendAPIKey)
			}

			relay := notify.NewRelay(notify.RelayConfig{
				URL:        cfg.Mail.RabbitURL,
				Exchange:   cfg.Mail.Exchange,
				Queue:      cfg.Mail.Queue,
				RoutingKey: cfg.Mail.RoutingKey,
			}, sender, log)
			if err := relay.Connect(); err != nil {
				return err
			}
			defer relay.Close()

			log.Info("mail relay started", "queue", cfg.Mail.Queue)
			return relay.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log mail instead of sending it")
	return cmd
}
