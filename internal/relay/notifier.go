package relay

import (
	"context"
	"sync"

	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/wsutils"
	"golang.org/x/sync/errgroup"
)

// RoomNotifier pushes room-table change signals to observer sockets. The
// dispatch channel is buffered and coalescing so a dispatch never blocks
// the room service while it holds the table mutex.
type RoomNotifier struct {
	mu        sync.Mutex
	listeners map[string]wsutils.JSONWriter

	updateRoomCh chan struct{}
}

func (n *RoomNotifier) Listen(id string, w wsutils.JSONWriter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[id] = w
}

func (n *RoomNotifier) Stop(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, id)
}

func (n *RoomNotifier) DispatchUpdateRooms() {
	select {
	case n.updateRoomCh <- struct{}{}:
	default:
	}
}

func (n *RoomNotifier) getListeners() (result []wsutils.JSONWriter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, listener := range n.listeners {
		result = append(result, listener)
	}
	return
}

// OnUpdateRooms runs until ctx is done, invoking fn for every listener on
// each dispatched update. Listeners are notified in parallel so one slow
// observer cannot stall the rest.
func (n *RoomNotifier) OnUpdateRooms(ctx context.Context, fn func(wsutils.JSONWriter)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.updateRoomCh:
			g := new(errgroup.Group)
			for _, listener := range n.getListeners() {
				listener := listener
				g.Go(func() error {
					fn(listener)
					return nil
				})
			}
			_ = g.Wait()
		}
	}
}

func NewRoomNotifier() *RoomNotifier {
	return &RoomNotifier{
		listeners:    make(map[string]wsutils.JSONWriter),
		updateRoomCh: make(chan struct{}, 1),
	}
}
