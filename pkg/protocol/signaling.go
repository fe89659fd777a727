package protocol

import "encoding/json"

type (
	MeetingID     = string
	ParticipantID = string
)

// Events exchanged over the signaling websocket.
const (
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"

	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventRoomsUpdated      = "rooms-updated"
	EventError             = "error"
)

// Envelope is the single frame shape on the wire. Data stays raw so relayed
// offer/answer/candidate blobs pass through byte-for-byte.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a ready-to-send frame.
func NewEnvelope(event string, data any) (*Envelope, error) {
	if data == nil {
		return &Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: raw}, nil
}

// Inbound signal bodies. The target hint is decoded for visibility but the
// relay broadcasts room-wide regardless; peers filter by the session ids
// embedded in the opaque blobs.

type OfferPayload struct {
	Offer    json.RawMessage `json:"offer"`
	TargetID ParticipantID   `json:"targetId,omitempty"`
}

type AnswerPayload struct {
	Answer   json.RawMessage `json:"answer"`
	TargetID ParticipantID   `json:"targetId,omitempty"`
}

type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	TargetID  ParticipantID   `json:"targetId,omitempty"`
}

// Outbound signal bodies carry the origin so recipients can attribute them.

type OfferBroadcast struct {
	Offer    json.RawMessage `json:"offer"`
	SenderID ParticipantID   `json:"senderId"`
}

type AnswerBroadcast struct {
	Answer   json.RawMessage `json:"answer"`
	SenderID ParticipantID   `json:"senderId"`
}

type CandidateBroadcast struct {
	Candidate json.RawMessage `json:"candidate"`
	SenderID  ParticipantID   `json:"senderId"`
}

type ParticipantEvent struct {
	ParticipantID ParticipantID `json:"participantId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Room snapshots served by the listing endpoint and the notifier observers.

type ParticipantInfo struct {
	ID          ParticipantID `json:"id"`
	Connections int           `json:"connections"`
}

type RoomInfo struct {
	MeetingID    MeetingID         `json:"meetingId"`
	HostID       ParticipantID     `json:"hostId,omitempty"`
	Participants []ParticipantInfo `json:"participants"`
}

type RoomListResponse struct {
	Rooms []RoomInfo `json:"rooms"`
}

type RelayStats struct {
	RoomsActive       int   `json:"roomsActive"`
	ConnectionsActive int64 `json:"connectionsActive"`
	MessagesRelayed   int64 `json:"messagesRelayed"`
}

type HealthResponse struct {
	Status string     `json:"status"`
	Stats  RelayStats `json:"stats"`
}
