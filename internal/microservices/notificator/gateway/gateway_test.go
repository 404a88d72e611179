package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
)

func TestMain(m *testing.M) {
	logger.Configure("error", io.Discard)
	os.Exit(m.Run())
}

func drain(s *ChanSink) []Event {
	var out []Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestManagerRoutesByChannel(t *testing.T) {
	m := NewManager(logger.New("gateway-test"))
	admin, disp, printing, foiling := NewChanSink(8), NewChanSink(8), NewChanSink(8), NewChanSink(8)

	if _, err := m.Register(RoleAdmin, "", admin); err != nil {
		t.Fatalf("register admin failed: %v", err)
	}
	if _, err := m.Register(RoleDispatcher, domain.CraftGlass, disp); err != nil {
		t.Fatalf("register dispatcher failed: %v", err)
	}
	if _, err := m.Register(RoleTeam, domain.CraftPrinting, printing); err != nil {
		t.Fatalf("register printing failed: %v", err)
	}
	if _, err := m.Register(RoleTeam, domain.CraftFoiling, foiling); err != nil {
		t.Fatalf("register foiling failed: %v", err)
	}
	if _, err := m.Register(RoleTeam, "painting", NewChanSink(1)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown craft, got %v", err)
	}

	if n := m.Deliver(Event{Name: domain.EventStageReady, Channel: TeamChannel(domain.CraftPrinting)}); n != 1 {
		t.Fatalf("expected one printing delivery, got %d", n)
	}
	if n := m.Deliver(Event{Name: domain.EventOrderUpdated, Channel: ChannelDispatchers}); n != 2 {
		t.Fatalf("expected admin and dispatcher deliveries, got %d", n)
	}
	if n := m.Deliver(Event{Name: domain.EventStageReady, Channel: TeamChannel(domain.CraftCoating)}); n != 0 {
		t.Fatalf("empty channel delivered %d", n)
	}

	if got := drain(foiling); len(got) != 0 {
		t.Fatalf("foiling received foreign events: %+v", got)
	}
	if got := drain(printing); len(got) != 1 {
		t.Fatalf("printing expected one event, got %d", len(got))
	}
	if m.Members(ChannelDispatchers) != 2 {
		t.Fatalf("dispatchers channel should have two members")
	}
}

func TestManagerUnregisterAndClose(t *testing.T) {
	m := NewManager(logger.New("gateway-test"))
	sink := NewChanSink(1)
	s, err := m.Register(RoleTeam, domain.CraftBoxes, sink)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	m.Unregister(s.ID)
	select {
	case <-sink.Done():
	default:
		t.Fatalf("unregister must close the sink")
	}
	if m.Members(TeamChannel(domain.CraftBoxes)) != 0 {
		t.Fatalf("channel membership not cleared")
	}

	m.Close()
	if _, err := m.Register(RoleAdmin, "", NewChanSink(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	s := NewChanSink(1)
	if err := s.Send(Event{Name: "a"}); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if err := s.Send(Event{Name: "b"}); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("expected slow consumer, got %v", err)
	}
	s.Close()
	s.Close()
	if err := s.Send(Event{Name: "c"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
}

func testView() domain.OrderView {
	glass := domain.Assignment{ID: "g1", ItemID: "i1", OrderNumber: "ORD-1", Craft: domain.CraftGlass, Quantity: 3,
		Glass: &domain.GlassDetails{Name: "Amber 30ml", Combination: "printing"}}
	stage := domain.Assignment{ID: "p1", ItemID: "i1", OrderNumber: "ORD-1", Craft: domain.CraftPrinting, Quantity: 3, GlassAssignmentID: "g1"}
	cp := domain.Assignment{ID: "c1", ItemID: "i2", OrderNumber: "ORD-1", Craft: domain.CraftCaps, Quantity: 3}
	return domain.BuildOrderView(
		domain.Order{Number: "ORD-1", ItemIDs: []string{"i1", "i2"}},
		[]domain.OrderItem{
			{ID: "i1", TeamAssignments: map[domain.Craft][]string{domain.CraftGlass: {"g1"}, domain.CraftPrinting: {"p1"}}},
			{ID: "i2", TeamAssignments: map[domain.Craft][]string{domain.CraftCaps: {"c1"}}},
		},
		[]domain.Assignment{glass, stage, cp},
	)
}

func TestPublishOrderSendsTeamFilteredViews(t *testing.T) {
	m := NewManager(logger.New("gateway-test"))
	g := New(NewLocalFanout(m), logger.New("gateway-test"))
	caps, disp := NewChanSink(4), NewChanSink(4)
	_, _ = m.Register(RoleTeam, domain.CraftCaps, caps)
	_, _ = m.Register(RoleDispatcher, "", disp)

	g.PublishOrder(context.Background(), domain.EventOrderProgress, testView())

	got := drain(caps)
	if len(got) != 1 || got[0].Name != domain.EventOrderProgress || got[0].ID == "" {
		t.Fatalf("expected one caps event, got %+v", got)
	}
	var v domain.OrderView
	if err := json.Unmarshal(got[0].Payload, &v); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if len(v.Items) != 1 || v.Items[0].ID != "i2" {
		t.Fatalf("caps view must hold only the caps item, got %+v", v.Items)
	}
	if full := drain(disp); len(full) != 1 {
		t.Fatalf("dispatchers expected the full view once, got %d", len(full))
	}
}

func TestPublishActivationsCarriesGlass(t *testing.T) {
	m := NewManager(logger.New("gateway-test"))
	g := New(NewLocalFanout(m), logger.New("gateway-test"))
	printing, disp := NewChanSink(4), NewChanSink(4)
	_, _ = m.Register(RoleTeam, domain.CraftPrinting, printing)
	_, _ = m.Register(RoleAdmin, "", disp)

	act := domain.Activation{
		Key:          domain.DispatchKey{OrderNumber: "ORD-1", ItemID: "i1", GlassAssignmentID: "g1", Stage: domain.CraftPrinting},
		AssignmentID: "p1", Stage: domain.CraftPrinting, After: domain.CraftGlass,
	}
	g.PublishActivations(context.Background(), []domain.Activation{act}, testView())

	got := drain(printing)
	if len(got) != 1 || got[0].Name != domain.EventStageReady {
		t.Fatalf("expected one stage.ready, got %+v", got)
	}
	var p domain.StageReadyPayload
	if err := json.Unmarshal(got[0].Payload, &p); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if p.Glass == nil || p.Glass.Name != "Amber 30ml" || p.AssignmentID != "p1" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if len(drain(disp)) != 1 {
		t.Fatalf("dispatchers expected the stage.ready")
	}
}

type capturePublisher struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
	err  error
}

func (c *capturePublisher) Publish(_ context.Context, exchange, key string, body []byte, headers amqp.Table, contentType string, persistent bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if persistent {
		return errors.New("realtime messages must be transient")
	}
	c.keys = append(c.keys, key)
	c.body = append(c.body, body)
	return c.err
}

func TestAMQPFanoutRoutesByChannel(t *testing.T) {
	pub := &capturePublisher{}
	g := New(NewAMQPFanout(pub, "realtime_topic"), logger.New("gateway-test"))
	g.PublishDeleted(context.Background(), "ORD-9", []domain.Craft{domain.CraftBoxes})

	if len(pub.keys) != 2 || pub.keys[0] != "team.boxes" || pub.keys[1] != ChannelDispatchers {
		t.Fatalf("unexpected routing keys %v", pub.keys)
	}
	ev, err := DecodeEvent(pub.body[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.Name != domain.EventOrderDeleted || ev.Channel != "team.boxes" {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := DecodeEvent([]byte(`{"event":"x"}`)); err == nil {
		t.Fatalf("event without channel must be rejected")
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	g := New(NewAMQPFanout(pub, "realtime_topic"), logger.New("gateway-test"))
	g.NotifyDispatchers(context.Background(), domain.EventOrderUpdated, map[string]string{"order_number": "ORD-1"})
	if len(pub.keys) != 1 {
		t.Fatalf("expected one publish attempt, got %d", len(pub.keys))
	}
}
