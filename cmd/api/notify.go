package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-ops-api/pkg/config"
	"github.com/noah-isme/tutor-ops-api/pkg/jobs"
	"github.com/noah-isme/tutor-ops-api/pkg/notify"
)

// buildSender wires the configured reminder channel behind the job queue.
// Email goes to SendGrid and SMS to the broker when those are configured;
// anything unrouted is logged.
func buildSender(cfg config.NotifyConfig, logr *zap.Logger) (*notify.QueuedSender, func(), error) {
	fallback := notify.NewLogSender(logr)
	routes := map[string]notify.Sender{}
	closeFn := func() {}

	switch cfg.Channel {
	case "", config.NotifyChannelLog:
	case config.NotifyChannelSendGrid, config.NotifyChannelAMQP:
		if cfg.Channel == config.NotifyChannelSendGrid {
			if cfg.SendGridAPIKey == "" {
				return nil, nil, fmt.Errorf("notify channel %q requires SENDGRID_API_KEY", cfg.Channel)
			}
			routes[notify.ChannelEmail] = notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail)
		}
		if cfg.AMQPURL != "" {
			broker, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return nil, nil, fmt.Errorf("connect broker: %w", err)
			}
			closeFn = func() { _ = broker.Close() }
			routes[notify.ChannelSMS] = broker
			if cfg.Channel == config.NotifyChannelAMQP {
				routes[notify.ChannelEmail] = broker
			}
		} else if cfg.Channel == config.NotifyChannelAMQP {
			return nil, nil, fmt.Errorf("notify channel %q requires AMQP_URL", cfg.Channel)
		}
	default:
		return nil, nil, fmt.Errorf("unknown notify channel %q", cfg.Channel)
	}

	queued := notify.NewQueuedSender(notify.NewRouter(fallback, routes), jobs.QueueConfig{
		Workers:    cfg.DispatchWorkers,
		MaxRetries: cfg.DispatchRetries,
		RetryDelay: cfg.DispatchBackoff,
		JobTimeout: 15 * time.Second,
		Logger:     logr,
	})
	return queued, closeFn, nil
}
