package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/booking-reminders/internal/config"
	"github.com/wolfman30/booking-reminders/internal/notify"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// BuildDeliverer picks the reminder transport named by DELIVERY_TRANSPORT.
func BuildDeliverer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.Deliverer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.DeliveryTransport {
	case appconfig.TransportLog, "":
		return notify.NewLogDeliverer(logger), nil
	case appconfig.TransportSendGrid:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return nil, fmt.Errorf("bootstrap: SENDGRID_API_KEY is required for sendgrid delivery")
		}
		return notify.NewEmailDeliverer(sender), nil
	case appconfig.TransportSES, appconfig.TransportSQS:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		if cfg.DeliveryTransport == appconfig.TransportSES {
			sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger)
			return notify.NewEmailDeliverer(sender), nil
		}
		if cfg.ReminderQueueURL == "" {
			return nil, fmt.Errorf("bootstrap: REMINDER_QUEUE_URL is required for sqs delivery")
		}
		return notify.NewQueueDeliverer(sqs.NewFromConfig(awsCfg), cfg.ReminderQueueURL), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown delivery transport %q", cfg.DeliveryTransport)
	}
}
