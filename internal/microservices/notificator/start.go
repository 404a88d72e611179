package notificator

import (
	"context"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/config"
	"fulfillment-tracker/internal/connections/rabbitmq"
	"fulfillment-tracker/internal/microservices/notificator/service"
)

// Start runs the notification-subscriber mode until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, lg *logger.Logger) error {
	rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
	if err != nil {
		lg.Error("rabbitmq_connect_failed", err, nil)
		return err
	}
	defer rmq.Close()
	if err := rmq.DeclareRealtime(cfg.Realtime.Exchange); err != nil {
		return err
	}

	tap := service.NewNotificatorService(rmq, cfg.Realtime.Exchange, lg)
	return tap.Notify(ctx)
}
