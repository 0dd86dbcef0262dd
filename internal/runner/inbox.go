package runner

import (
	"context"
	"sync"

	"signal_bot/internal/metrics"
	"signal_bot/pkg/logger"
)

const (
	PolicyDropOldest = "drop_oldest"
	PolicyBlock      = "block"
)

// Inbox: ограниченная FIFO-очередь между слушателем канала и парсером.
// drop_oldest: при переполнении выкидываем самое старое сообщение; block: отправитель ждёт место.
type Inbox struct {
	ch     chan string
	policy string
	mu     sync.Mutex // порядок drop+push между отправителями
}

func NewInbox(size int, policy string) *Inbox {
	if size <= 0 {
		size = 1
	}
	if policy != PolicyBlock {
		policy = PolicyDropOldest
	}
	return &Inbox{ch: make(chan string, size), policy: policy}
}

// Push кладёт сообщение. false: только если ctx отменён при policy=block.
func (in *Inbox) Push(ctx context.Context, msg string) bool {
	if in.policy == PolicyBlock {
		select {
		case in.ch <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	for {
		select {
		case in.ch <- msg:
			return true
		default:
		}
		// очередь переполнена: выкидываем самое старое
		select {
		case old := <-in.ch:
			metrics.InboxDropped.Inc()
			logger.Warn("[INBOX] full, dropped oldest message (%d bytes)", len(old))
		default:
		}
	}
}

func (in *Inbox) C() <-chan string { return in.ch }

func (in *Inbox) Len() int { return len(in.ch) }

func (in *Inbox) Cap() int { return cap(in.ch) }
