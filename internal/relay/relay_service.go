package relay

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/protocol"
	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/wsutils"
	"go.uber.org/atomic"
	"go.uber.org/fx"
)

// subscriber is one live websocket bound to a room channel. The handshake
// parameters are captured once at establishment and never change for the
// connection's lifetime.
type subscriber struct {
	meetingID protocol.MeetingID
	userID    protocol.ParticipantID
	isHost    bool
	conn      wsutils.JSONWriter
}

// room is the bookkeeping record for one active meeting. participants maps
// a participant id to its live connection count; the key set is the logical
// membership, so duplicate tabs collapse to one entry instead of racing the
// cleanup path.
type room struct {
	hostID       protocol.ParticipantID
	participants map[protocol.ParticipantID]int
}

// RoomService owns the room table. Every read and mutation, including the
// broadcast fan-outs, runs under one mutex: connect, relay and disconnect
// handling for a room never interleave below operation granularity.
//
// Channel subscriptions live beside the room records on purpose. A channel
// entry exists per connection and is dropped only at that connection's
// teardown, so peers that outlive a deleted room (host departure) keep
// receiving relayed signaling until their own sockets close.
type RoomService struct {
	mu     sync.Mutex
	logger *slog.Logger

	notifier *RoomNotifier
	rooms    map[protocol.MeetingID]*room
	channels map[protocol.MeetingID]map[string]*subscriber
	conns    map[string]*subscriber

	connectionsActive atomic.Int64
	messagesRelayed   atomic.Int64
}

// Join subscribes conn to the meeting's channel, lazily creates the room
// record and announces the participant to everyone else. Returns the
// connection id used for Relay and Leave.
func (s *RoomService) Join(meetingID protocol.MeetingID, userID protocol.ParticipantID, isHost bool, conn wsutils.JSONWriter) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	connID := uuid.NewString()
	sub := &subscriber{
		meetingID: meetingID,
		userID:    userID,
		isHost:    isHost,
		conn:      conn,
	}

	channel, exist := s.channels[meetingID]
	if !exist {
		channel = make(map[string]*subscriber)
		s.channels[meetingID] = channel
	}
	channel[connID] = sub
	s.conns[connID] = sub
	s.connectionsActive.Inc()

	roomCtx, exist := s.rooms[meetingID]
	if !exist {
		roomCtx = &room{
			participants: make(map[protocol.ParticipantID]int),
		}
		s.rooms[meetingID] = roomCtx
		s.logger.Info("room created", slog.String("meetingId", meetingID))
	}
	// First connection to claim host wins; the claim is never overwritten
	// for the lifetime of the room record.
	if isHost && roomCtx.hostID == "" {
		roomCtx.hostID = userID
	}
	roomCtx.participants[userID]++

	s.broadcastLocked(meetingID, connID, protocol.EventParticipantJoined, protocol.ParticipantEvent{
		ParticipantID: userID,
	})
	s.notifier.DispatchUpdateRooms()

	s.logger.Info("participant joined",
		slog.String("meetingId", meetingID),
		slog.String("participantId", userID),
		slog.Bool("host", isHost))
	return connID
}

// Relay rebroadcasts a signaling body to every other subscriber of the
// sender's room channel. The body is built by the caller so the opaque
// payload bytes pass through untouched.
func (s *RoomService) Relay(connID string, event string, body any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exist := s.conns[connID]
	if !exist {
		return ErrConnectionNotFound
	}

	s.broadcastLocked(sub.meetingID, connID, event, body)
	s.messagesRelayed.Inc()
	return nil
}

// Leave tears down one connection. Membership and room cleanup only fire
// when the participant's last connection closes; a surviving duplicate tab
// keeps the membership alive.
func (s *RoomService) Leave(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exist := s.conns[connID]
	if !exist {
		return
	}
	delete(s.conns, connID)
	if channel, ok := s.channels[sub.meetingID]; ok {
		delete(channel, connID)
		if len(channel) == 0 {
			delete(s.channels, sub.meetingID)
		}
	}
	s.connectionsActive.Dec()

	roomCtx, roomExist := s.rooms[sub.meetingID]
	if roomExist {
		if count := roomCtx.participants[sub.userID]; count > 1 {
			roomCtx.participants[sub.userID] = count - 1
			s.notifier.DispatchUpdateRooms()
			return
		}
		delete(roomCtx.participants, sub.userID)
	}

	s.broadcastLocked(sub.meetingID, connID, protocol.EventParticipantLeft, protocol.ParticipantEvent{
		ParticipantID: sub.userID,
	})

	if roomExist && (sub.userID == roomCtx.hostID || len(roomCtx.participants) == 0) {
		delete(s.rooms, sub.meetingID)
		s.logger.Info("room closed",
			slog.String("meetingId", sub.meetingID),
			slog.Bool("hostDeparted", sub.userID == roomCtx.hostID))
	}

	s.notifier.DispatchUpdateRooms()
	s.logger.Info("participant left",
		slog.String("meetingId", sub.meetingID),
		slog.String("participantId", sub.userID))
}

// broadcastLocked fans an envelope out to every channel subscriber except
// excludeConnID. Fire and forget: write failures are logged and the frame
// is dropped for that peer. Callers must hold s.mu.
func (s *RoomService) broadcastLocked(meetingID protocol.MeetingID, excludeConnID string, event string, body any) {
	channel := s.channels[meetingID]
	if len(channel) == 0 {
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("broadcast marshal failed", slog.String("event", event), slog.String("err", err.Error()))
		return
	}
	message := &protocol.Envelope{Event: event, Data: raw}

	for connID, sub := range channel {
		if connID == excludeConnID {
			continue
		}
		if err := sub.conn.WriteJSON(message); err != nil {
			s.logger.Error("broadcast write failed",
				slog.String("event", event),
				slog.String("meetingId", meetingID),
				slog.String("participantId", sub.userID),
				slog.String("err", err.Error()))
		}
	}
}

// GetRoom snapshots one room record.
func (s *RoomService) GetRoom(meetingID protocol.MeetingID) (protocol.RoomInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomCtx, exist := s.rooms[meetingID]
	if !exist {
		return protocol.RoomInfo{}, false
	}
	return roomInfoLocked(meetingID, roomCtx), true
}

// ListRooms snapshots the whole table, sorted by meeting id.
func (s *RoomService) ListRooms() []protocol.RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]protocol.RoomInfo, 0, len(s.rooms))
	for meetingID, roomCtx := range s.rooms {
		result = append(result, roomInfoLocked(meetingID, roomCtx))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MeetingID < result[j].MeetingID
	})
	return result
}

func (s *RoomService) Stats() protocol.RelayStats {
	s.mu.Lock()
	roomsActive := len(s.rooms)
	s.mu.Unlock()

	return protocol.RelayStats{
		RoomsActive:       roomsActive,
		ConnectionsActive: s.connectionsActive.Load(),
		MessagesRelayed:   s.messagesRelayed.Load(),
	}
}

func roomInfoLocked(meetingID protocol.MeetingID, roomCtx *room) protocol.RoomInfo {
	participants := make([]protocol.ParticipantInfo, 0, len(roomCtx.participants))
	for id, count := range roomCtx.participants {
		participants = append(participants, protocol.ParticipantInfo{
			ID:          id,
			Connections: count,
		})
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ID < participants[j].ID
	})

	return protocol.RoomInfo{
		MeetingID:    meetingID,
		HostID:       roomCtx.hostID,
		Participants: participants,
	}
}

type NewRoomServiceParams struct {
	fx.In

	Logger       *slog.Logger
	RoomNotifier *RoomNotifier
}

func NewRoomService(params NewRoomServiceParams) *RoomService {
	return &RoomService{
		logger:   params.Logger,
		notifier: params.RoomNotifier,
		rooms:    make(map[protocol.MeetingID]*room),
		channels: make(map[protocol.MeetingID]map[string]*subscriber),
		conns:    make(map[string]*subscriber),
	}
}
