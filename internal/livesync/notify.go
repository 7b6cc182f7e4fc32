package livesync

import (
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/fittrack/internal/domain"
)

// NotificationKind classifies a transient notification.
type NotificationKind string

const (
	NotifyChange  NotificationKind = "change"
	NotifyOnline  NotificationKind = "online"
	NotifyOffline NotificationKind = "offline"
	NotifyQueued  NotificationKind = "queued"
	NotifyDrained NotificationKind = "drained"
)

// Notification is a short-lived message about sync activity for one user.
type Notification struct {
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Table     domain.Table     `json:"table,omitempty"`
	Operation domain.Op        `json:"operation,omitempty"`
	RowID     string           `json:"row_id,omitempty"`
	Message   string           `json:"message"`
	At        time.Time        `json:"at"`
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify user=%s kind=%s: %s", n.UserID, n.Kind, n.Message)
}

// Notifiers fans a notification out to every notifier.
func Notifiers(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(n Notification) {
		for _, notifier := range notifiers {
			if notifier != nil {
				notifier.Notify(n)
			}
		}
	})
}

// DefaultFeedSize is the number of notifications a Feed keeps per user.
const DefaultFeedSize = 50

// Feed keeps the most recent notifications per user, oldest evicted first.
type Feed struct {
	mu    sync.Mutex
	size  int
	items map[string][]Notification
}

// NewFeed returns a feed keeping size notifications per user.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{size: size, items: make(map[string][]Notification)}
}

func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := append(f.items[n.UserID], n)
	if len(items) > f.size {
		items = append([]Notification(nil), items[len(items)-f.size:]...)
	}
	f.items[n.UserID] = items
}

// Recent returns the user's notifications, newest first.
func (f *Feed) Recent(userID string) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.items[userID]
	out := make([]Notification, len(items))
	for i, n := range items {
		out[len(items)-1-i] = n
	}
	return out
}

func changeMessage(table domain.Table, op domain.Op) string {
	verb := map[domain.Op]string{
		domain.OpInsert: "added",
		domain.OpUpdate: "updated",
		domain.OpDelete: "removed",
	}[op]
	return fmt.Sprintf("%s entry %s", table.Label(), verb)
}
