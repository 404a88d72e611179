package service

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/notificator/gateway"
)

func TestMain(m *testing.M) {
	logger.Configure("error", io.Discard)
	os.Exit(m.Run())
}

type chanSubscriber struct {
	msgs    chan amqp.Delivery
	binding string
}

func (s *chanSubscriber) Subscribe(_ context.Context, _, bindingKey, _ string) (<-chan amqp.Delivery, error) {
	s.binding = bindingKey
	return s.msgs, nil
}

func TestRelayDeliversToLocalSessions(t *testing.T) {
	lg := logger.New("relay-test")
	mgr := gateway.NewManager(lg)
	sink := gateway.NewChanSink(4)
	if _, err := mgr.Register(gateway.RoleTeam, domain.CraftFoiling, sink); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	sub := &chanSubscriber{msgs: make(chan amqp.Delivery, 4)}
	body, _ := json.Marshal(gateway.Event{ID: "e1", Name: domain.EventStageReady, Channel: gateway.TeamChannel(domain.CraftFoiling), Payload: json.RawMessage(`{}`)})
	sub.msgs <- amqp.Delivery{Body: []byte("not json")}
	sub.msgs <- amqp.Delivery{Body: body}
	close(sub.msgs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := NewRelay(sub, "realtime_topic", mgr, lg).Run(ctx)
	if err == nil {
		t.Fatalf("closed delivery channel must surface an error")
	}
	if sub.binding != "#" {
		t.Fatalf("relay must bind every routing key, got %q", sub.binding)
	}

	select {
	case ev := <-sink.Events():
		if ev.ID != "e1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("relayed event not delivered")
	}
}

func TestNotifyStopsWithContext(t *testing.T) {
	sub := &chanSubscriber{msgs: make(chan amqp.Delivery)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewNotificatorService(sub, "realtime_topic", logger.New("tap-test")).Notify(ctx); err != nil {
		t.Fatalf("cancelled tap must stop cleanly, got %v", err)
	}
}
