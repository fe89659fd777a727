package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records broadcast frames instead of writing to a socket.
type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
}

func (f *fakeConn) WriteJSON(val any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	env, ok := val.(*protocol.Envelope)
	if !ok {
		return fmt.Errorf("unexpected frame type %T", val)
	}
	data := make(json.RawMessage, len(env.Data))
	copy(data, env.Data)
	f.frames = append(f.frames, protocol.Envelope{Event: env.Event, Data: data})
	return nil
}

func (f *fakeConn) byEvent(event string) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []protocol.Envelope
	for _, frame := range f.frames {
		if frame.Event == event {
			result = append(result, frame)
		}
	}
	return result
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestService() *RoomService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRoomService(NewRoomServiceParams{
		Logger:       logger,
		RoomNotifier: NewRoomNotifier(),
	})
}

func TestJoinAddsDistinctParticipants(t *testing.T) {
	svc := newTestService()

	for i := 0; i < 5; i++ {
		svc.Join("daily-standup", fmt.Sprintf("user-%d", i), false, &fakeConn{})
	}

	info, exist := svc.GetRoom("daily-standup")
	require.True(t, exist)
	require.Len(t, info.Participants, 5)
	assert.Empty(t, info.HostID)
}

func TestDuplicateUserCollapsesToOneParticipant(t *testing.T) {
	svc := newTestService()

	svc.Join("room1", "alice", false, &fakeConn{})
	svc.Join("room1", "alice", false, &fakeConn{})

	info, exist := svc.GetRoom("room1")
	require.True(t, exist)
	require.Len(t, info.Participants, 1)
	assert.Equal(t, "alice", info.Participants[0].ID)
	assert.Equal(t, 2, info.Participants[0].Connections)
}

func TestFirstHostClaimWins(t *testing.T) {
	svc := newTestService()

	svc.Join("room1", "alice", true, &fakeConn{})
	svc.Join("room1", "mallory", true, &fakeConn{})

	info, exist := svc.GetRoom("room1")
	require.True(t, exist)
	assert.Equal(t, "alice", info.HostID)
}

func TestLateHostClaimOnHostlessRoom(t *testing.T) {
	svc := newTestService()

	svc.Join("room1", "bob", false, &fakeConn{})
	svc.Join("room1", "alice", true, &fakeConn{})

	info, exist := svc.GetRoom("room1")
	require.True(t, exist)
	assert.Equal(t, "alice", info.HostID)
}

func TestHostDisconnectRemovesRoom(t *testing.T) {
	svc := newTestService()

	hostConnID := svc.Join("room1", "alice", true, &fakeConn{})
	svc.Join("room1", "bob", false, &fakeConn{})

	svc.Leave(hostConnID)

	_, exist := svc.GetRoom("room1")
	assert.False(t, exist, "room must be deleted when the host departs, even with peers connected")
}

func TestLastParticipantDisconnectRemovesRoom(t *testing.T) {
	svc := newTestService()

	first := svc.Join("room1", "bob", false, &fakeConn{})
	second := svc.Join("room1", "carol", false, &fakeConn{})

	svc.Leave(first)
	_, exist := svc.GetRoom("room1")
	require.True(t, exist)

	svc.Leave(second)
	_, exist = svc.GetRoom("room1")
	assert.False(t, exist)
}

func TestDuplicateConnectionDisconnectKeepsMembership(t *testing.T) {
	svc := newTestService()

	firstTab := svc.Join("room1", "alice", true, &fakeConn{})
	svc.Join("room1", "alice", true, &fakeConn{})
	bobConn := &fakeConn{}
	svc.Join("room1", "bob", false, bobConn)

	svc.Leave(firstTab)

	info, exist := svc.GetRoom("room1")
	require.True(t, exist, "closing one of two host tabs must not tear the room down")
	assert.Equal(t, "alice", info.HostID)
	assert.Empty(t, bobConn.byEvent(protocol.EventParticipantLeft))
}

func TestJoinBroadcastSkipsJoiner(t *testing.T) {
	svc := newTestService()

	aliceConn := &fakeConn{}
	bobConn := &fakeConn{}
	svc.Join("room1", "alice", true, aliceConn)
	svc.Join("room1", "bob", false, bobConn)

	joined := aliceConn.byEvent(protocol.EventParticipantJoined)
	require.Len(t, joined, 1)

	var event protocol.ParticipantEvent
	require.NoError(t, json.Unmarshal(joined[0].Data, &event))
	assert.Equal(t, "bob", event.ParticipantID)

	assert.Zero(t, bobConn.frameCount(), "the joining connection must not receive its own announcement")
}

func TestRelayBroadcastsVerbatimPayload(t *testing.T) {
	svc := newTestService()

	aliceConn := &fakeConn{}
	bobConn := &fakeConn{}
	carolConn := &fakeConn{}
	aliceID := svc.Join("M", "alice", true, aliceConn)
	svc.Join("M", "bob", false, bobConn)
	svc.Join("M", "carol", false, carolConn)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 42 2 IN IP4 127.0.0.1\r\n"}`)
	sentFrames := aliceConn.frameCount()

	require.NoError(t, svc.Relay(aliceID, protocol.EventOffer, protocol.OfferBroadcast{
		Offer:    payload,
		SenderID: "alice",
	}))

	for _, conn := range []*fakeConn{bobConn, carolConn} {
		offers := conn.byEvent(protocol.EventOffer)
		require.Len(t, offers, 1)

		var body protocol.OfferBroadcast
		require.NoError(t, json.Unmarshal(offers[0].Data, &body))
		assert.Equal(t, "alice", body.SenderID)
		assert.Equal(t, string(payload), string(body.Offer), "payload must pass through byte-for-byte")
	}

	assert.Equal(t, sentFrames, aliceConn.frameCount(), "sender must not receive its own relay")
}

func TestRelayAfterHostDepartureStillReachesChannel(t *testing.T) {
	svc := newTestService()

	hostConnID := svc.Join("room1", "alice", true, &fakeConn{})
	bobID := svc.Join("room1", "bob", false, &fakeConn{})
	carolConn := &fakeConn{}
	svc.Join("room1", "carol", false, carolConn)

	svc.Leave(hostConnID)
	_, exist := svc.GetRoom("room1")
	require.False(t, exist)

	// The broadcast group is per connection and survives the room record.
	require.NoError(t, svc.Relay(bobID, protocol.EventAnswer, protocol.AnswerBroadcast{
		Answer:   json.RawMessage(`{"type":"answer","sdp":"v=0\r\n"}`),
		SenderID: "bob",
	}))
	assert.Len(t, carolConn.byEvent(protocol.EventAnswer), 1)
}

func TestParticipantLeftBroadcast(t *testing.T) {
	svc := newTestService()

	svc.Join("room1", "alice", true, &fakeConn{})
	bobID := svc.Join("room1", "bob", false, &fakeConn{})

	carolConn := &fakeConn{}
	svc.Join("room1", "carol", false, carolConn)

	svc.Leave(bobID)

	left := carolConn.byEvent(protocol.EventParticipantLeft)
	require.Len(t, left, 1)

	var event protocol.ParticipantEvent
	require.NoError(t, json.Unmarshal(left[0].Data, &event))
	assert.Equal(t, "bob", event.ParticipantID)
}

func TestRelayUnknownConnection(t *testing.T) {
	svc := newTestService()
	err := svc.Relay("no-such-conn", protocol.EventOffer, protocol.OfferBroadcast{})
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestStatsCounters(t *testing.T) {
	svc := newTestService()

	aliceID := svc.Join("room1", "alice", true, &fakeConn{})
	svc.Join("room1", "bob", false, &fakeConn{})
	svc.Join("room2", "carol", false, &fakeConn{})

	require.NoError(t, svc.Relay(aliceID, protocol.EventOffer, protocol.OfferBroadcast{SenderID: "alice"}))

	stats := svc.Stats()
	assert.Equal(t, 2, stats.RoomsActive)
	assert.Equal(t, int64(3), stats.ConnectionsActive)
	assert.Equal(t, int64(1), stats.MessagesRelayed)

	svc.Leave(aliceID)
	stats = svc.Stats()
	assert.Equal(t, 1, stats.RoomsActive)
	assert.Equal(t, int64(2), stats.ConnectionsActive)
}

func TestListRoomsSortedSnapshot(t *testing.T) {
	svc := newTestService()

	svc.Join("zeta", "zoe", false, &fakeConn{})
	svc.Join("alpha", "alice", true, &fakeConn{})

	rooms := svc.ListRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "alpha", rooms[0].MeetingID)
	assert.Equal(t, "alice", rooms[0].HostID)
	assert.Equal(t, "zeta", rooms[1].MeetingID)
}
