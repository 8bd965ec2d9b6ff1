package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
)

var errUnavailable = errors.New("service unavailable")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu      sync.Mutex
	listFn  func(call int) ([]notification.Notification, error)
	calls   int
	params  []notification.ListParams
	readIDs []string
	readAll int
	markErr error
}

func (s *fakeSource) List(_ context.Context, params notification.ListParams) ([]notification.Notification, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.params = append(s.params, params)
	fn := s.listFn
	s.mu.Unlock()

	if fn == nil {
		return []notification.Notification{}, nil
	}
	return fn(call)
}

func (s *fakeSource) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.readIDs = append(s.readIDs, id)
	return nil
}

func (s *fakeSource) MarkAllRead(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.readAll++
	return nil
}

func (s *fakeSource) setList(fn func(call int) ([]notification.Notification, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listFn = fn
}

func (s *fakeSource) setMarkErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markErr = err
}

type fakeFeed struct {
	mu          sync.Mutex
	ch          chan notification.Frame
	subscribed  int
	unsubscribe int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan notification.Frame, 64)}
}

func (f *fakeFeed) Subscribe() (<-chan notification.Frame, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed++
	var once sync.Once
	return f.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.unsubscribe++
			close(f.ch)
		})
	}
}

func page(items ...notification.Notification) func(int) ([]notification.Notification, error) {
	return func(int) ([]notification.Notification, error) { return items, nil }
}

func item(id string, read bool) notification.Notification {
	return notification.Notification{ID: id, Title: "title " + id, IsRead: read, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func riskFrame(id string) notification.Frame {
	return notification.Frame{
		Kind:       notification.KindNewRisk,
		RawType:    "new_risk",
		EntityType: "risk_alert",
		ID:         id,
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestInbox(t *testing.T, source *fakeSource, feed *fakeFeed, opts Options) *Inbox {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	i := New(context.Background(), source, feed, opts)
	t.Cleanup(i.Close)
	return i
}

func waitUnread(t *testing.T, i *Inbox, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return i.UnreadCount() == want }, 2*time.Second, 5*time.Millisecond,
		"expected unread %d, got %d", want, i.UnreadCount())
}

func TestNewSubscribesOnceAndRefreshes(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false))}
	feed := newFakeFeed()

	i := newTestInbox(t, source, feed, Options{})

	assert.Equal(t, 1, feed.subscribed)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, []notification.ListParams{{PerPage: DefaultPageSize}}, source.params)
	assert.Equal(t, 1, i.UnreadCount())

	i.Close()
	i.Close()
	assert.Equal(t, 1, feed.unsubscribe)
}

func TestInitialRefreshFailureLeavesEmptyState(t *testing.T) {
	source := &fakeSource{listFn: func(int) ([]notification.Notification, error) { return nil, errUnavailable }}

	i := newTestInbox(t, source, newFakeFeed(), Options{})

	assert.Empty(t, i.Notifications())
	assert.Equal(t, 0, i.UnreadCount())
}

func TestRefreshReplacesListAndCountsUnread(t *testing.T) {
	source := &fakeSource{}
	i := newTestInbox(t, source, newFakeFeed(), Options{})

	source.setList(page(item("n1", false), item("n2", true)))
	require.NoError(t, i.Refresh(context.Background()))

	got := i.Notifications()
	require.Len(t, got, 2)
	assert.Equal(t, "n1", got[0].ID)
	assert.Equal(t, "n2", got[1].ID)
	assert.Equal(t, 1, i.UnreadCount())
}

func TestRefreshFailureKeepsState(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false), item("n2", false))}
	i := newTestInbox(t, source, newFakeFeed(), Options{})
	before := i.Snapshot()

	source.setList(func(int) ([]notification.Notification, error) { return nil, errUnavailable })
	err := i.Refresh(context.Background())

	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, before, i.Snapshot())
}

func TestRealtimeArrivalBumpsUnreadOnly(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false), item("n2", false), item("n3", false))}
	feed := newFakeFeed()
	i := newTestInbox(t, source, feed, Options{})
	require.Equal(t, 3, i.UnreadCount())
	list := i.Notifications()

	frame := riskFrame("")
	feed.ch <- frame
	waitUnread(t, i, 4)

	assert.Equal(t, list, i.Notifications())
	recent := i.RecentMessages()
	require.Len(t, recent, 1)
	assert.Equal(t, frame, recent[0])
}

func TestRecentMessagesAreBoundedNewestFirst(t *testing.T) {
	feed := newFakeFeed()
	i := newTestInbox(t, &fakeSource{}, feed, Options{RecentCapacity: 3})

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		feed.ch <- riskFrame(id)
	}
	waitUnread(t, i, 5)

	var ids []string
	for _, f := range i.RecentMessages() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"e", "d", "c"}, ids)
}

func TestMarkReadDecrementsAfterSuccess(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false), item("n2", true))}
	i := newTestInbox(t, source, newFakeFeed(), Options{})
	require.Equal(t, 1, i.UnreadCount())

	require.NoError(t, i.MarkRead(context.Background(), "n1"))

	assert.True(t, i.Notifications()[0].IsRead)
	assert.Equal(t, 0, i.UnreadCount())
	assert.Equal(t, []string{"n1"}, source.readIDs)
}

func TestMarkReadFailureChangesNothing(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false))}
	i := newTestInbox(t, source, newFakeFeed(), Options{})
	before := i.Snapshot()

	source.setMarkErr(errUnavailable)
	assert.ErrorIs(t, i.MarkRead(context.Background(), "n1"), errUnavailable)
	assert.ErrorIs(t, i.MarkAllRead(context.Background()), errUnavailable)

	assert.Equal(t, before, i.Snapshot())
}

func TestMarkReadOfReadEntryKeepsCount(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false), item("n2", true))}
	i := newTestInbox(t, source, newFakeFeed(), Options{})

	require.NoError(t, i.MarkRead(context.Background(), "n2"))
	assert.Equal(t, 1, i.UnreadCount())
}

func TestUnreadNeverNegative(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false))}
	feed := newFakeFeed()
	i := newTestInbox(t, source, feed, Options{})

	for _, id := range []string{"n1", "x", "y", "z"} {
		require.NoError(t, i.MarkRead(context.Background(), id))
		assert.GreaterOrEqual(t, i.UnreadCount(), 0)
	}
	assert.Equal(t, 0, i.UnreadCount())

	feed.ch <- riskFrame("r1")
	waitUnread(t, i, 1)
	require.NoError(t, i.MarkRead(context.Background(), "r1"))
	require.NoError(t, i.MarkRead(context.Background(), "r1"))
	assert.Equal(t, 0, i.UnreadCount())
}

func TestMarkAllRead(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false), item("n2", false))}
	feed := newFakeFeed()
	i := newTestInbox(t, source, feed, Options{})
	feed.ch <- riskFrame("r1")
	waitUnread(t, i, 3)

	require.NoError(t, i.MarkAllRead(context.Background()))

	assert.Equal(t, 0, i.UnreadCount())
	for _, n := range i.Notifications() {
		assert.True(t, n.IsRead)
	}

	// the cleared delta must not come back on the next refresh
	source.setList(page(item("n1", true), item("n2", true)))
	require.NoError(t, i.Refresh(context.Background()))
	assert.Equal(t, 0, i.UnreadCount())
}

func TestRefreshDropsDeltasItAlreadyCovers(t *testing.T) {
	source := &fakeSource{}
	feed := newFakeFeed()
	i := newTestInbox(t, source, feed, Options{})

	feed.ch <- riskFrame("r1")
	waitUnread(t, i, 1)

	source.setList(page(item("r1", false), item("n1", false)))
	require.NoError(t, i.Refresh(context.Background()))
	assert.Equal(t, 2, i.UnreadCount(), "the arrival is already in the fetched page")
}

func TestRefreshKeepsDeltasThatArriveInFlight(t *testing.T) {
	source := &fakeSource{}
	feed := newFakeFeed()
	i := newTestInbox(t, source, feed, Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	source.setList(func(int) ([]notification.Notification, error) {
		close(entered)
		<-release
		return []notification.Notification{item("n1", false), item("n2", false)}, nil
	})

	done := make(chan error, 1)
	go func() { done <- i.Refresh(context.Background()) }()
	<-entered

	feed.ch <- riskFrame("r1")
	waitUnread(t, i, 1)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 3, i.UnreadCount())
	assert.Len(t, i.Notifications(), 2, "in-flight arrivals never enter the list")
}

func TestArrivalsWithoutRefreshKeepBoundedState(t *testing.T) {
	source := &fakeSource{}
	feed := newFakeFeed()
	i := newTestInbox(t, source, feed, Options{RecentCapacity: 5})

	source.setList(func(int) ([]notification.Notification, error) { return nil, errUnavailable })
	for batch := 1; batch <= 10; batch++ {
		for n := 0; n < 50; n++ {
			feed.ch <- riskFrame("")
		}
		waitUnread(t, i, batch*50)
		assert.ErrorIs(t, i.Refresh(context.Background()), errUnavailable)
	}

	i.mu.Lock()
	pending := i.pendingLocked()
	i.mu.Unlock()
	assert.Equal(t, 500, pending)
	assert.Len(t, i.RecentMessages(), 5)

	source.setList(page(item("n1", false), item("n2", true)))
	require.NoError(t, i.Refresh(context.Background()))
	assert.Equal(t, 1, i.UnreadCount())

	i.mu.Lock()
	assert.Equal(t, i.seq, i.covered)
	i.mu.Unlock()
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	source := &fakeSource{}
	i := newTestInbox(t, source, newFakeFeed(), Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	source.setList(func(call int) ([]notification.Notification, error) {
		if call == 2 {
			close(entered)
			<-release
			return []notification.Notification{item("old", false)}, nil
		}
		return []notification.Notification{item("new", true)}, nil
	})

	slow := make(chan error, 1)
	go func() { slow <- i.Refresh(context.Background()) }()
	<-entered

	require.NoError(t, i.Refresh(context.Background()))
	close(release)
	require.NoError(t, <-slow)

	got := i.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, 0, i.UnreadCount())
}

func TestOnUpdateReceivesSnapshots(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	source := &fakeSource{listFn: page(item("n1", false))}
	feed := newFakeFeed()
	i := newTestInbox(t, source, feed, Options{OnUpdate: func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, s.UnreadCount)
	}})

	feed.ch <- riskFrame("r1")
	waitUnread(t, i, 2)
	require.NoError(t, i.MarkAllRead(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 0}, counts)
}

func TestSnapshotIsACopy(t *testing.T) {
	source := &fakeSource{listFn: page(item("n1", false))}
	i := newTestInbox(t, source, newFakeFeed(), Options{})

	snap := i.Snapshot()
	snap.Notifications[0].IsRead = true

	assert.False(t, i.Notifications()[0].IsRead)
}
