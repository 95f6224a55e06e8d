package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hirewire/chat-service/internal/config"
	"github.com/hirewire/chat-service/internal/directory"
	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/internal/hub"
	"github.com/hirewire/chat-service/internal/notify"
	"github.com/hirewire/chat-service/internal/policy"
	"github.com/hirewire/chat-service/internal/presence"
	"github.com/hirewire/chat-service/internal/store"
	"github.com/hirewire/chat-service/pkg/jwt"
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// --- fakes ---

type fakeTokens struct {
	byToken map[string]string // token -> user id
}

func (f *fakeTokens) Verify(token string) (*jwt.Claims, error) {
	userID, ok := f.byToken[token]
	if !ok {
		return nil, jwt.ErrInvalidToken
	}
	return &jwt.Claims{UserID: userID, Type: "access"}, nil
}

type fakeUsers struct {
	users map[string]*domain.User
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return u, nil
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.JobParticipants
}

func (f *fakeJobs) GetParticipants(_ context.Context, jobID string) (*domain.JobParticipants, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, policy.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) setWorker(jobID, workerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].WorkerID = workerID
}

type fakeStore struct {
	mu         sync.Mutex
	messages   []*domain.Message
	nextID     int
	failCreate bool
}

func (f *fakeStore) Create(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("store unavailable")
	}
	f.nextID++
	msg.ID = fmt.Sprintf("msg-%d", f.nextID)
	msg.CreatedAt = testTime.Add(time.Duration(f.nextID) * time.Second)
	msg.UpdatedAt = msg.CreatedAt
	cp := *msg
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errors.New("message not found")
}

func (f *fakeStore) GetByIDs(_ context.Context, ids []string) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*domain.Message
	for _, m := range f.messages {
		if want[m.ID] {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByJob(context.Context, string, string, int, store.Direction) ([]*domain.Message, string, bool, error) {
	return nil, "", false, nil
}

func (f *fakeStore) MarkRead(_ context.Context, ids []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, m := range f.messages {
		if want[m.ID] {
			m.IsRead = true
			t := at
			m.ReadAt = &t
		}
	}
	return nil
}

func (f *fakeStore) UnreadCount(context.Context, string, string) (int64, error) { return 0, nil }
func (f *fakeStore) UnreadTotal(context.Context, string) (int64, error)         { return 0, nil }
func (f *fakeStore) Search(context.Context, string, string, int) ([]*domain.Message, error) {
	return nil, nil
}
func (f *fakeStore) DeleteOwn(context.Context, string, string) error { return nil }
func (f *fakeStore) ListRooms(context.Context, string) ([]*domain.RoomPreview, error) {
	return nil, nil
}

func (f *fakeStore) byID(id string) *domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakePresence struct {
	mu       sync.Mutex
	statuses map[string]domain.Status
}

func (f *fakePresence) SetStatus(_ context.Context, userID string, status domain.Status, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[userID] = status
	return nil
}

func (f *fakePresence) GetStatus(_ context.Context, userID string) (*presence.UserStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[userID]
	if !ok {
		status = domain.StatusOffline
	}
	return &presence.UserStatus{UserID: userID, Status: status}, nil
}

func (f *fakePresence) Close() error { return nil }

func (f *fakePresence) statusOf(userID string) domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[userID]
}

type fakeNotifier struct {
	ch chan *notify.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n *notify.Notification) error {
	f.ch <- n
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

// --- harness ---

type testEnv struct {
	hub      *hub.Hub
	svc      *chatService
	store    *fakeStore
	jobs     *fakeJobs
	presence *fakePresence
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	jobs := &fakeJobs{jobs: map[string]*domain.JobParticipants{
		"job-1": {JobID: "job-1", PosterID: "user-poster", WorkerID: "user-worker", Status: "IN_PROGRESS"},
	}}
	users := &fakeUsers{users: map[string]*domain.User{
		"user-poster":     {ID: "user-poster", DisplayName: "Paula Poster", IsVerified: true},
		"user-worker":     {ID: "user-worker", DisplayName: "Walt Worker", IsVerified: true},
		"user-outsider":   {ID: "user-outsider", DisplayName: "Oscar Outsider", IsVerified: true},
		"user-unverified": {ID: "user-unverified", DisplayName: "Uma", IsVerified: false},
	}}
	tokens := &fakeTokens{byToken: map[string]string{
		"tok-poster":     "user-poster",
		"tok-worker":     "user-worker",
		"tok-outsider":   "user-outsider",
		"tok-unverified": "user-unverified",
	}}

	env := &testEnv{
		hub:      hub.New(),
		store:    &fakeStore{},
		jobs:     jobs,
		presence: &fakePresence{statuses: make(map[string]domain.Status)},
		notifier: &fakeNotifier{ch: make(chan *notify.Notification, 8)},
	}
	env.svc = &chatService{
		hub:      env.hub,
		store:    env.store,
		policy:   policy.New(jobs),
		tokens:   tokens,
		users:    users,
		jobs:     jobs,
		presence: env.presence,
		notifier: env.notifier,
		clock:    func() time.Time { return testTime },
	}
	return env
}

func (e *testEnv) newClient(t *testing.T, connID string) *hub.Client {
	t.Helper()
	c := hub.NewClient(connID, e.hub, nil, config.WebSocketConfig{})
	e.hub.Register(c)
	return c
}

// connect registers and authenticates a connection, draining the
// resulting events so tests start from a clean outbox.
func (e *testEnv) connect(t *testing.T, connID, token string) *hub.Client {
	t.Helper()
	c := e.newClient(t, connID)
	if err := e.svc.HandleAuthenticate(context.Background(), c, token); err != nil {
		t.Fatalf("authenticate %s: %v", connID, err)
	}
	drain(c)
	return c
}

func drain(c *hub.Client) {
	for {
		select {
		case <-c.Outbound():
		default:
			return
		}
	}
}

func events(t *testing.T, c *hub.Client) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for {
		select {
		case data := <-c.Outbound():
			var ev map[string]interface{}
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(evs []map[string]interface{}, eventType string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, ev := range evs {
		if ev["type"] == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func requireEvent(t *testing.T, evs []map[string]interface{}, eventType string) map[string]interface{} {
	t.Helper()
	matches := eventsOfType(evs, eventType)
	if len(matches) != 1 {
		t.Fatalf("expected exactly one %q event, got %d in %v", eventType, len(matches), evs)
	}
	return matches[0]
}

// --- tests ---

func TestAuthenticateSuccess(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t, "conn-1")

	if err := env.svc.HandleAuthenticate(context.Background(), c, "tok-poster"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	ev := requireEvent(t, events(t, c), domain.EventAuthenticated)
	if ev["userId"] != "user-poster" || ev["userName"] != "Paula Poster" {
		t.Fatalf("unexpected identity in %v", ev)
	}
	if !c.Session.IsAuthenticated() {
		t.Fatal("session should be authenticated")
	}
	if !env.hub.UserOnline("user-poster") {
		t.Fatal("user should be bound as online")
	}
	if env.presence.statusOf("user-poster") != domain.StatusOnline {
		t.Fatal("presence store should record online")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"invalid token", "tok-bogus"},
		{"unverified account", "tok-unverified"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			c := env.newClient(t, "conn-1")

			if err := env.svc.HandleAuthenticate(context.Background(), c, tc.token); err == nil {
				t.Fatal("expected an error")
			}
			requireEvent(t, events(t, c), domain.EventAuthFailed)
			if c.Session.IsAuthenticated() {
				t.Fatal("session must stay unauthenticated")
			}
		})
	}
}

func TestAuthenticateFirstConnectionOnlyBroadcastsOnline(t *testing.T) {
	env := newTestEnv(t)
	observer := env.connect(t, "conn-obs", "tok-worker")

	env.connect(t, "conn-1", "tok-poster")
	online := eventsOfType(events(t, observer), domain.EventUserOnline)
	if len(online) != 1 {
		t.Fatalf("expected 1 user_online, got %d", len(online))
	}

	// A second device for the same user is not a presence transition.
	env.connect(t, "conn-2", "tok-poster")
	if online := eventsOfType(events(t, observer), domain.EventUserOnline); len(online) != 0 {
		t.Fatalf("second connection broadcast %d user_online events", len(online))
	}
}

func TestPrivilegedEventsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient(t, "conn-1")
	ctx := context.Background()

	env.svc.HandleJoinRoom(ctx, c, "job-1")
	env.svc.HandleSendMessage(ctx, c, &domain.SendMessageEvent{JobID: "job-1", Content: "hi"})
	env.svc.HandleMarkRead(ctx, c, []string{"msg-1"})

	evs := events(t, c)
	if len(evs) != 3 {
		t.Fatalf("expected 3 error events, got %d: %v", len(evs), evs)
	}
	for _, ev := range evs {
		if ev["type"] != domain.EventError || ev["code"] != domain.ErrCodeAuthRequired {
			t.Fatalf("expected AUTH_REQUIRED error, got %v", ev)
		}
	}
	if env.store.count() != 0 {
		t.Fatal("nothing should be persisted")
	}
}

func TestJoinRoomAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	ev := requireEvent(t, events(t, poster), domain.EventJoinedRoom)
	if ev["roomId"] != "job_job-1" || ev["roomType"] != "job" {
		t.Fatalf("unexpected joined_room payload: %v", ev)
	}

	outsider := env.connect(t, "conn-o", "tok-outsider")
	env.svc.HandleJoinRoom(ctx, outsider, "job-1")
	ev = requireEvent(t, events(t, outsider), domain.EventRoomError)
	if ev["code"] != domain.ErrCodeNotParticipant {
		t.Fatalf("expected NOT_PARTICIPANT, got %v", ev)
	}
	if env.hub.IsRoomMember("conn-o", "job_job-1") {
		t.Fatal("denied user must not be in the room")
	}

	env.svc.HandleJoinRoom(ctx, poster, "no-such-job")
	ev = requireEvent(t, events(t, poster), domain.EventRoomError)
	if ev["code"] != domain.ErrCodeJobNotFound {
		t.Fatalf("expected JOB_NOT_FOUND, got %v", ev)
	}
}

func TestJoinRoomAnnouncesPresenceToMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	drain(poster)

	env.svc.HandleJoinRoom(ctx, worker, "job-1")

	ev := requireEvent(t, events(t, poster), domain.EventUserOnline)
	if ev["userId"] != "user-worker" {
		t.Fatalf("expected worker presence, got %v", ev)
	}
	// The joiner does not hear its own arrival.
	if online := eventsOfType(events(t, worker), domain.EventUserOnline); len(online) != 0 {
		t.Fatalf("joiner received %d of its own presence events", len(online))
	}
}

func TestSendMessageDeliversAndPersists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	env.svc.HandleJoinRoom(ctx, worker, "job-1")
	drain(poster)
	drain(worker)

	err := env.svc.HandleSendMessage(ctx, poster, &domain.SendMessageEvent{
		JobID:   "job-1",
		Content: "Can you start on Monday?",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := requireEvent(t, events(t, poster), domain.EventMessageSent)
	recv := requireEvent(t, events(t, worker), domain.EventMessageReceived)

	sentMsg := sent["message"].(map[string]interface{})
	recvMsg := recv["message"].(map[string]interface{})
	if sentMsg["id"] != recvMsg["id"] {
		t.Fatalf("ack and broadcast disagree: %v vs %v", sentMsg["id"], recvMsg["id"])
	}
	if recvMsg["sender_id"] != "user-poster" || recvMsg["content"] != "Can you start on Monday?" {
		t.Fatalf("unexpected broadcast message: %v", recvMsg)
	}

	stored := env.store.byID(sentMsg["id"].(string))
	if stored == nil {
		t.Fatal("message must be persisted")
	}
	if stored.MessageType != domain.MessageTypeText {
		t.Fatalf("default message type should be TEXT, got %s", stored.MessageType)
	}

	select {
	case n := <-env.notifier.ch:
		if n.UserID != "user-worker" || n.Type != notify.TypeNewMessage {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("counterpart notification never arrived")
	}
}

func TestSendMessagePersistenceFailureSuppressesBroadcast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	env.svc.HandleJoinRoom(ctx, worker, "job-1")
	drain(poster)
	drain(worker)

	env.store.failCreate = true
	env.svc.HandleSendMessage(ctx, poster, &domain.SendMessageEvent{JobID: "job-1", Content: "hello"})

	ev := requireEvent(t, events(t, poster), domain.EventError)
	if ev["code"] != domain.ErrCodePersistenceFailed {
		t.Fatalf("expected PERSISTENCE_FAILED, got %v", ev)
	}
	if evs := events(t, worker); len(evs) != 0 {
		t.Fatalf("unpersisted message must not be broadcast, got %v", evs)
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poster := env.connect(t, "conn-p", "tok-poster")

	cases := []struct {
		name string
		ev   *domain.SendMessageEvent
	}{
		{"empty content", &domain.SendMessageEvent{JobID: "job-1", Content: "   "}},
		{"too long", &domain.SendMessageEvent{JobID: "job-1", Content: strings.Repeat("x", 2001)}},
		{"system type from client", &domain.SendMessageEvent{JobID: "job-1", Content: "hi", MessageType: domain.MessageTypeSystem}},
		{"image without attachment", &domain.SendMessageEvent{JobID: "job-1", Content: "pic", MessageType: domain.MessageTypeImage}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env.svc.HandleSendMessage(ctx, poster, tc.ev)
			ev := requireEvent(t, events(t, poster), domain.EventError)
			if ev["code"] != domain.ErrCodeValidationFailed {
				t.Fatalf("expected VALIDATION_FAILED, got %v", ev)
			}
		})
	}
	if env.store.count() != 0 {
		t.Fatal("rejected messages must not be persisted")
	}
}

func TestSendMessageRevalidatesAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, worker, "job-1")
	drain(worker)

	// The job is reassigned while the connection stays up. The cached
	// room membership must not keep the old worker writable.
	env.jobs.setWorker("job-1", "user-other")

	env.svc.HandleSendMessage(ctx, worker, &domain.SendMessageEvent{JobID: "job-1", Content: "still here?"})
	ev := requireEvent(t, events(t, worker), domain.EventRoomError)
	if ev["code"] != domain.ErrCodeNotParticipant {
		t.Fatalf("expected NOT_PARTICIPANT, got %v", ev)
	}
	if env.store.count() != 0 {
		t.Fatal("revoked sender must not persist messages")
	}
}

func TestMarkReadFiltersAndBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	env.svc.HandleJoinRoom(ctx, worker, "job-1")

	env.svc.HandleSendMessage(ctx, poster, &domain.SendMessageEvent{JobID: "job-1", Content: "one"})
	env.svc.HandleSendMessage(ctx, poster, &domain.SendMessageEvent{JobID: "job-1", Content: "two"})
	env.svc.HandleSendMessage(ctx, worker, &domain.SendMessageEvent{JobID: "job-1", Content: "mine"})
	drain(poster)
	drain(worker)

	// The worker marks everything, including its own message; only the
	// poster's two messages are eligible.
	env.svc.HandleMarkRead(ctx, worker, []string{"msg-1", "msg-2", "msg-3", "msg-missing"})

	ev := requireEvent(t, events(t, poster), domain.EventMessagesRead)
	ids := ev["messageIds"].([]interface{})
	if len(ids) != 2 {
		t.Fatalf("expected 2 read ids, got %v", ids)
	}
	if ev["readBy"] != "user-worker" {
		t.Fatalf("expected readBy user-worker, got %v", ev)
	}

	if !env.store.byID("msg-1").IsRead || !env.store.byID("msg-2").IsRead {
		t.Fatal("eligible messages should be marked read")
	}
	if env.store.byID("msg-3").IsRead {
		t.Fatal("own message must never be marked read by its author")
	}

	// Re-marking already-read messages produces no second receipt.
	env.svc.HandleMarkRead(ctx, worker, []string{"msg-1", "msg-2"})
	if evs := eventsOfType(events(t, poster), domain.EventMessagesRead); len(evs) != 0 {
		t.Fatalf("duplicate mark-read broadcast %d receipts", len(evs))
	}
}

func TestMarkReadReachesRoomWhenReaderNotJoined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	env.svc.HandleSendMessage(ctx, poster, &domain.SendMessageEvent{JobID: "job-1", Content: "hello"})
	drain(poster)

	// The worker reads from the inbox view without joining the room.
	env.svc.HandleMarkRead(ctx, worker, []string{"msg-1"})

	requireEvent(t, events(t, poster), domain.EventMessagesRead)
	drain(worker)
}

func TestLeaveRoomIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	env.svc.HandleJoinRoom(ctx, worker, "job-1")
	drain(poster)
	drain(worker)

	env.svc.HandleLeaveRoom(ctx, worker, "job-1")
	env.svc.HandleLeaveRoom(ctx, worker, "job-1")

	// Both leaves are acked, but only the first one was a membership
	// change, so the poster hears exactly one user_offline.
	if acks := eventsOfType(events(t, worker), domain.EventLeftRoom); len(acks) != 2 {
		t.Fatalf("expected 2 left_room acks, got %d", len(acks))
	}
	if offline := eventsOfType(events(t, poster), domain.EventUserOffline); len(offline) != 1 {
		t.Fatalf("expected exactly 1 user_offline, got %d", len(offline))
	}
}

func TestTypingOnlyReachesRoomMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	worker := env.connect(t, "conn-w", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	drain(poster)

	// Worker has not joined: typing is silently dropped.
	env.svc.HandleTyping(ctx, worker, "job-1", domain.EventTypingStart)
	if evs := events(t, poster); len(evs) != 0 {
		t.Fatalf("non-member typing reached the room: %v", evs)
	}

	env.svc.HandleJoinRoom(ctx, worker, "job-1")
	drain(poster)
	env.svc.HandleTyping(ctx, worker, "job-1", domain.EventTypingStart)

	ev := requireEvent(t, events(t, poster), domain.EventTypingStart)
	if ev["userId"] != "user-worker" || ev["userName"] != "Walt Worker" {
		t.Fatalf("unexpected typing payload: %v", ev)
	}
	// The typist never hears their own typing echo.
	if evs := events(t, worker); len(evs) != 0 {
		t.Fatalf("typist received echo: %v", evs)
	}
}

func TestUpdateStatusBroadcastsGlobally(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	observer := env.connect(t, "conn-o", "tok-outsider")

	env.svc.HandleUpdateStatus(ctx, poster, domain.StatusOffline)

	ev := requireEvent(t, events(t, observer), domain.EventUserStatusChanged)
	if ev["userId"] != "user-poster" || ev["status"] != string(domain.StatusOffline) {
		t.Fatalf("unexpected status broadcast: %v", ev)
	}
	if env.presence.statusOf("user-poster") != domain.StatusOffline {
		t.Fatal("presence store should record the new status")
	}

	env.svc.HandleUpdateStatus(ctx, poster, domain.Status("away"))
	ev = requireEvent(t, events(t, poster), domain.EventError)
	if ev["code"] != domain.ErrCodeBadRequest {
		t.Fatalf("unknown status should be BAD_REQUEST, got %v", ev)
	}
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t)
	c := env.connect(t, "conn-1", "tok-poster")

	env.svc.HandlePing(context.Background(), c, 1234567890)

	ev := requireEvent(t, events(t, c), domain.EventPong)
	if ev["timestamp"] != float64(1234567890) {
		t.Fatalf("pong must echo the timestamp, got %v", ev)
	}
}

func TestDisconnectRunsOfflineTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	workerA := env.connect(t, "conn-w1", "tok-worker")
	workerB := env.connect(t, "conn-w2", "tok-worker")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	env.svc.HandleJoinRoom(ctx, workerA, "job-1")
	drain(poster)

	// First worker connection drops: room presence fires, but the user
	// is still online through the second device.
	env.svc.HandleDisconnect(ctx, workerA)
	env.hub.Unregister(workerA)

	evs := events(t, poster)
	if offline := eventsOfType(evs, domain.EventUserOffline); len(offline) != 1 {
		t.Fatalf("expected 1 room-scoped user_offline, got %d", len(offline))
	}
	if !env.hub.UserOnline("user-worker") {
		t.Fatal("user should still be online via the second connection")
	}
	if env.presence.statusOf("user-worker") != domain.StatusOnline {
		t.Fatal("presence store must not flip offline yet")
	}

	// Last connection drops: the global offline transition runs.
	env.svc.HandleDisconnect(ctx, workerB)
	env.hub.Unregister(workerB)

	if offline := eventsOfType(events(t, poster), domain.EventUserOffline); len(offline) != 1 {
		t.Fatalf("expected the global user_offline, got %d", len(offline))
	}
	if env.hub.UserOnline("user-worker") {
		t.Fatal("user should be offline")
	}
	if env.presence.statusOf("user-worker") != domain.StatusOffline {
		t.Fatal("presence store should record offline")
	}
}

func TestSendSystemMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	poster := env.connect(t, "conn-p", "tok-poster")
	env.svc.HandleJoinRoom(ctx, poster, "job-1")
	drain(poster)

	if err := env.svc.SendSystemMessage(ctx, "job-1", "Job has been assigned"); err != nil {
		t.Fatalf("system message: %v", err)
	}

	ev := requireEvent(t, events(t, poster), domain.EventMessageReceived)
	msg := ev["message"].(map[string]interface{})
	if msg["sender_id"] != domain.SystemSenderID {
		t.Fatalf("expected system sender, got %v", msg)
	}
	if msg["message_type"] != string(domain.MessageTypeSystem) {
		t.Fatalf("expected SYSTEM type, got %v", msg)
	}
	if env.store.count() != 1 {
		t.Fatal("system message should be persisted")
	}
}
