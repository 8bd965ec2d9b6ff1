package inbox

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
)

const (
	DefaultPageSize       = 20
	DefaultRecentCapacity = 50
)

// Options configures an Inbox
type Options struct {
	PageSize       int // default: 20
	RecentCapacity int // default: 50
	Logger         *slog.Logger

	// OnUpdate receives a snapshot after every state change. It runs on the
	// goroutine that caused the change, outside the inbox lock.
	OnUpdate func(Snapshot)
}

// Snapshot is a consistent copy of the inbox state
type Snapshot struct {
	Notifications  []notification.Notification
	UnreadCount    int
	RecentMessages []notification.Frame
}

// Inbox reconciles the authoritative REST list with realtime arrivals.
//
// Every realtime arrival takes the next sequence number. A refresh records
// the last sequence seen when it was issued; when it lands, arrivals up to that
// sequence are assumed to be in the fetched page and only later ones still
// count towards the unread badge. Arrivals are consecutive, so the pending set
// is the range after the covered sequence. A refresh issued before one that
// already landed is discarded.
type Inbox struct {
	source notification.Source
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	notifications []notification.Notification
	unread        int
	recent        []notification.Frame
	seq           uint64
	covered       uint64
	issued        uint64
	applied       uint64
	closed        bool

	cancel    func()
	done      chan struct{}
	closeOnce sync.Once
}

// New subscribes to feed, performs the initial refresh and returns the inbox.
// A failed initial refresh is logged; the inbox stays usable and empty.
func New(ctx context.Context, source notification.Source, feed notification.Feed, opts Options) *Inbox {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RecentCapacity <= 0 {
		opts.RecentCapacity = DefaultRecentCapacity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	frames, cancel := feed.Subscribe()
	i := &Inbox{
		source:        source,
		opts:          opts,
		logger:        opts.Logger.With("component", "inbox"),
		notifications: []notification.Notification{},
		recent:        []notification.Frame{},
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go i.consume(frames)

	_ = i.Refresh(ctx)
	return i
}

func (i *Inbox) consume(frames <-chan notification.Frame) {
	defer close(i.done)
	for frame := range frames {
		i.arrive(frame)
	}
}

func (i *Inbox) arrive(frame notification.Frame) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.seq++
	i.unread++

	i.recent = slices.Insert(i.recent, 0, frame)
	if len(i.recent) > i.opts.RecentCapacity {
		i.recent = i.recent[:i.opts.RecentCapacity]
	}
	snap := i.snapshotLocked()
	i.mu.Unlock()

	i.logger.Debug("realtime notification", "type", frame.RawType, "entity_type", frame.EntityType, "unread", snap.UnreadCount)
	i.notify(snap)
}

// Refresh replaces the list and unread count with the most recent REST page.
// On failure the previous state is kept and the error returned.
func (i *Inbox) Refresh(ctx context.Context) error {
	i.mu.Lock()
	i.issued++
	ticket := i.issued
	mark := i.seq
	i.mu.Unlock()

	items, err := i.source.List(ctx, notification.ListParams{PerPage: i.opts.PageSize})
	if err != nil {
		i.logger.Warn("notification refresh failed", "error", err)
		return err
	}

	i.mu.Lock()
	if i.closed || ticket < i.applied {
		i.mu.Unlock()
		i.logger.Debug("discarding stale refresh", "ticket", ticket)
		return nil
	}
	i.applied = ticket

	if mark > i.covered {
		i.covered = mark
	}

	i.notifications = slices.Clone(items)
	i.unread = countUnread(items) + i.pendingLocked()
	snap := i.snapshotLocked()
	i.mu.Unlock()

	i.notify(snap)
	return nil
}

// MarkRead marks id as read on the server and, once that succeeds, locally.
// The badge drops by one unless the entry is already read locally, so
// repeated calls for the same id cannot drive the count below the truth.
func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	if err := i.source.MarkRead(ctx, id); err != nil {
		i.logger.Warn("mark read failed", "id", id, "error", err)
		return err
	}

	i.mu.Lock()
	decrement := true
	for idx := range i.notifications {
		if i.notifications[idx].ID != id {
			continue
		}
		// already counted as read
		if i.notifications[idx].IsRead {
			decrement = false
		}
		i.notifications[idx].IsRead = true
		break
	}
	if decrement && i.unread > 0 {
		i.unread--
	}
	snap := i.snapshotLocked()
	i.mu.Unlock()

	i.notify(snap)
	return nil
}

// MarkAllRead marks everything read on the server and then locally
func (i *Inbox) MarkAllRead(ctx context.Context) error {
	if err := i.source.MarkAllRead(ctx); err != nil {
		i.logger.Warn("mark all read failed", "error", err)
		return err
	}

	i.mu.Lock()
	for idx := range i.notifications {
		i.notifications[idx].IsRead = true
	}
	i.unread = 0
	i.covered = i.seq
	snap := i.snapshotLocked()
	i.mu.Unlock()

	i.notify(snap)
	return nil
}

// Notifications returns the last fetched page, newest first
func (i *Inbox) Notifications() []notification.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.notifications)
}

func (i *Inbox) UnreadCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unread
}

// RecentMessages returns the buffered realtime frames, newest first
func (i *Inbox) RecentMessages() []notification.Frame {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.recent)
}

func (i *Inbox) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked()
}

// Close releases the realtime subscription. It does not disconnect the feed.
func (i *Inbox) Close() {
	i.closeOnce.Do(func() {
		i.mu.Lock()
		i.closed = true
		i.mu.Unlock()

		i.cancel()
		<-i.done
	})
}

func (i *Inbox) snapshotLocked() Snapshot {
	return Snapshot{
		Notifications:  slices.Clone(i.notifications),
		UnreadCount:    i.unread,
		RecentMessages: slices.Clone(i.recent),
	}
}

func (i *Inbox) notify(snap Snapshot) {
	if i.opts.OnUpdate != nil {
		i.opts.OnUpdate(snap)
	}
}

// pendingLocked counts arrivals newer than the last server state. Sequence
// numbers are consecutive, so every number in (covered, seq] is pending.
func (i *Inbox) pendingLocked() int {
	return int(i.seq - i.covered)
}

func countUnread(items []notification.Notification) int {
	n := 0
	for _, item := range items {
		if !item.IsRead {
			n++
		}
	}
	return n
}
