package conversation

import (
	"sync"

	"github.com/ylol-app/ylol/internal/domain"
)

// Phase is where the conversation is in its request/delivery cycle.
type Phase string

const (
	PhaseLoading          Phase = "loading"
	PhaseIdle             Phase = "idle"
	PhaseAwaitingResponse Phase = "awaiting_response"
	PhaseDelivering       Phase = "delivering"
)

// State is an immutable snapshot of everything the UI renders.
type State struct {
	Messages           []domain.Message
	IsAwaitingResponse bool
	IsDelivering       bool // typing indicator
	ActiveMode         domain.Mode
	IsInitialLoading   bool
	ErrorMessage       string
	SessionID          domain.SessionID
	IsResumedSession   bool
	Phase              Phase
}

func (s State) clone() State {
	out := s
	out.Messages = append([]domain.Message(nil), s.Messages...)
	return out
}

// Observer receives every snapshot, in order, synchronously with the
// transition that produced it. It must not call back into the Conversation.
type Observer interface {
	OnState(State)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(State)

func (f ObserverFunc) OnState(s State) { f(s) }

// broadcaster fans snapshots out to channel subscribers. Each subscriber holds
// at most one pending snapshot; a slow reader skips intermediate ones and
// always sees the latest.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan State
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan State)}
}

func (b *broadcaster) subscribe(initial State) (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan State, 1)
	ch <- initial
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			// drop the stale snapshot, keep the newest
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
