package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"notify-dispatch/internal/domain/entity"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// notifications

type memNotifications struct {
	mu    sync.Mutex
	items map[string]entity.Notification

	// interleave runs once before the next Update takes the lock
	interleave func()
}

func newMemNotifications() *memNotifications {
	return &memNotifications{items: make(map[string]entity.Notification)}
}

func (m *memNotifications) Get(_ context.Context, id string) (*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, entity.ErrNotificationNotFound
	}
	return &n, nil
}

func (m *memNotifications) Create(_ context.Context, n *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.Version = 1
	m.items[n.ID] = *n
	return nil
}

func (m *memNotifications) Update(_ context.Context, n *entity.Notification) error {
	m.mu.Lock()
	interleave := m.interleave
	m.interleave = nil
	m.mu.Unlock()
	if interleave != nil {
		interleave()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[n.ID]
	if !ok {
		return entity.ErrNotificationNotFound
	}
	if stored.Version != n.Version {
		return entity.ErrConcurrentModification
	}
	if stored.Status != n.Status && (stored.Status == entity.StatusCancelled || stored.Status == entity.StatusExpired) {
		return entity.ErrConcurrentModification
	}
	n.Version++
	m.items[n.ID] = *n
	return nil
}

func (m *memNotifications) ListDueScheduled(_ context.Context, now time.Time, limit int) ([]*entity.Notification, error) {
	return m.filter(limit, func(n entity.Notification) bool {
		return n.Status == entity.StatusPending && n.IsDue(now)
	}), nil
}

func (m *memNotifications) ListStuck(_ context.Context, olderThan time.Time, limit int) ([]*entity.Notification, error) {
	return m.filter(limit, func(n entity.Notification) bool {
		return n.Status == entity.StatusProcessing && !n.UpdatedAt.After(olderThan)
	}), nil
}

func (m *memNotifications) ListExpirable(_ context.Context, now time.Time, limit int) ([]*entity.Notification, error) {
	return m.filter(limit, func(n entity.Notification) bool {
		return !n.IsTerminal() && n.IsExpired(now)
	}), nil
}

func (m *memNotifications) filter(limit int, keep func(entity.Notification) bool) []*entity.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Notification
	for _, n := range m.items {
		if keep(n) {
			n := n
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memNotifications) status(id string) entity.NotificationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

// deliveries

type memDeliveries struct {
	mu    sync.Mutex
	items map[string]entity.Delivery
	// updateErr, when set, fails every Update.
	updateErr error
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{items: make(map[string]entity.Delivery)}
}

func (m *memDeliveries) Get(_ context.Context, id string) (*entity.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, entity.ErrDeliveryNotFound
	}
	return &d, nil
}

func (m *memDeliveries) FindByNotificationAndChannel(_ context.Context, notificationID string, ch entity.Channel) (*entity.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.items {
		if d.NotificationID == notificationID && d.Channel == ch {
			return &d, nil
		}
	}
	return nil, entity.ErrDeliveryNotFound
}

func (m *memDeliveries) FindByProviderMessageID(_ context.Context, id string) (*entity.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.items {
		if d.ProviderMessageID == id && id != "" {
			return &d, nil
		}
	}
	return nil, entity.ErrDeliveryNotFound
}

func (m *memDeliveries) ListByNotification(_ context.Context, notificationID string) ([]*entity.Delivery, error) {
	return m.filter(0, func(d entity.Delivery) bool { return d.NotificationID == notificationID }), nil
}

func (m *memDeliveries) Create(_ context.Context, d *entity.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.NotificationID == d.NotificationID && existing.Channel == d.Channel {
			return entity.ErrConcurrentModification
		}
	}
	d.Version = 1
	m.items[d.ID] = *d
	return nil
}

func (m *memDeliveries) Update(_ context.Context, d *entity.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.items[d.ID]
	if !ok {
		return entity.ErrDeliveryNotFound
	}
	if stored.Version != d.Version {
		return entity.ErrConcurrentModification
	}
	d.Version++
	m.items[d.ID] = *d
	return nil
}

func (m *memDeliveries) ListDueForRetry(_ context.Context, now time.Time, limit int) ([]*entity.Delivery, error) {
	return m.filter(limit, func(d entity.Delivery) bool { return d.IsDueForRetry(now) }), nil
}

func (m *memDeliveries) ListStale(_ context.Context, claimedBefore time.Time, limit int) ([]*entity.Delivery, error) {
	return m.filter(limit, func(d entity.Delivery) bool {
		return d.InFlight() && d.ClaimedAt != nil && !d.ClaimedAt.After(claimedBefore)
	}), nil
}

func (m *memDeliveries) filter(limit int, keep func(entity.Delivery) bool) []*entity.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Delivery
	for _, d := range m.items {
		if keep(d) {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memDeliveries) byChannel(notificationID string, ch entity.Channel) (entity.Delivery, bool) {
	d, err := m.FindByNotificationAndChannel(context.Background(), notificationID, ch)
	if err != nil {
		return entity.Delivery{}, false
	}
	return *d, true
}

func (m *memDeliveries) put(d entity.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Version == 0 {
		d.Version = 1
	}
	m.items[d.ID] = d
}

// sources

type memTemplates struct {
	items map[string]entity.NotificationTemplate
}

func (m memTemplates) Resolve(_ context.Context, id string) (*entity.NotificationTemplate, error) {
	t, ok := m.items[id]
	if !ok || !t.IsActive {
		return nil, fmt.Errorf("template %s: %w", id, entity.ErrTemplateNotFound)
	}
	return &t, nil
}

type memPreferences struct {
	items map[string]entity.NotificationPreference
	err   error
}

func (m memPreferences) Get(_ context.Context, userID string, typ entity.NotificationType) (entity.NotificationPreference, error) {
	if m.err != nil {
		return entity.NotificationPreference{}, m.err
	}
	if p, ok := m.items[userID+"/"+string(typ)]; ok {
		return p, nil
	}
	return entity.DefaultPreference(userID, typ), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []entity.DeliveryEvent
}

func (l *eventLog) Record(ev entity.DeliveryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []entity.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

// providers

type fakeProvider struct {
	ch entity.Channel

	mu    sync.Mutex
	calls []Message
	send  func(ctx context.Context, msg Message) (SendResult, error)
}

func newFakeProvider(ch entity.Channel, send func(ctx context.Context, msg Message) (SendResult, error)) *fakeProvider {
	if send == nil {
		send = func(_ context.Context, msg Message) (SendResult, error) {
			return SendResult{ProviderMessageID: "pm-" + msg.DeliveryID}, nil
		}
	}
	return &fakeProvider{ch: ch, send: send}
}

func (p *fakeProvider) Channel() entity.Channel { return p.ch }

func (p *fakeProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, msg)
	p.mu.Unlock()
	return p.send(ctx, msg)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) lastCall() Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

// harness

type harness struct {
	notifications *memNotifications
	deliveries    *memDeliveries
	templates     memTemplates
	preferences   memPreferences
	events        *eventLog
	providers     map[entity.Channel]*fakeProvider
	clock         *time.Time
	ids           int
	idMu          sync.Mutex
}

func newHarness() *harness {
	now := testNow
	h := &harness{
		notifications: newMemNotifications(),
		deliveries:    newMemDeliveries(),
		templates:     memTemplates{items: make(map[string]entity.NotificationTemplate)},
		preferences:   memPreferences{items: make(map[string]entity.NotificationPreference)},
		events:        &eventLog{},
		providers:     make(map[entity.Channel]*fakeProvider),
		clock:         &now,
	}
	for _, ch := range entity.AllChannels {
		h.providers[ch] = newFakeProvider(ch, nil)
	}
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Notifications: h.notifications,
		Deliveries:    h.deliveries,
		Templates:     h.templates,
		Preferences:   h.preferences,
		Providers: Providers{
			Email:   h.providers[entity.ChannelEmail],
			SMS:     h.providers[entity.ChannelSMS],
			Push:    h.providers[entity.ChannelPush],
			InApp:   h.providers[entity.ChannelInApp],
			Webhook: h.providers[entity.ChannelWebhook],
		},
		Events: h.events,
		Now:    func() time.Time { return *h.clock },
		NewID: func() string {
			h.idMu.Lock()
			defer h.idMu.Unlock()
			h.ids++
			return fmt.Sprintf("id-%d", h.ids)
		},
	}
}

func (h *harness) dispatcher(cfg Config) *Dispatcher {
	return NewDispatcher(h.deps(), cfg)
}

func (h *harness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}

// stored creates and persists a pending notification addressed on every channel.
func (h *harness) stored(channels ...entity.Channel) entity.Notification {
	n, err := entity.NewNotification(entity.NewNotificationParams{
		ID:          fmt.Sprintf("n-%d", len(h.notifications.items)+1),
		RecipientID: "user-1",
		Type:        entity.TypeInfo,
		Title:       "Welcome {{name}}",
		Message:     "Hello {{name}}",
		Channels:    channels,
		TemplateVariables: map[string]any{
			"name": "Ada",
		},
		Metadata: map[string]any{
			MetaEmail:      "ada@example.com",
			MetaPhone:      "+15550100",
			MetaPushToken:  "tok-1",
			MetaWebhookURL: "https://hooks.example.com/n",
		},
	}, *h.clock)
	if err != nil {
		panic(err)
	}
	_ = h.notifications.Create(context.Background(), &n)
	return n
}
