package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v4"
	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/protocol"
	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/variables"
	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/wsutils"
	"go.uber.org/fx"
)

var clientOrigin = variables.Env(variables.CLIENT_ORIGIN_NAME, variables.CLIENT_ORIGIN_DEFAULT)

type relayController struct {
	lifecycle   fx.Lifecycle
	roomService *RoomService
	notifier    *RoomNotifier
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func (ctrl *relayController) wsError(w *wsutils.ThreadSafeWriter, err error) {
	ctrl.logger.Error(fmt.Sprintf("%s | Err: %s", w.Conn.RemoteAddr(), err))

	message, mErr := protocol.NewEnvelope(protocol.EventError, protocol.ErrorPayload{
		Message: err.Error(),
	})
	if mErr != nil {
		return
	}
	_ = w.WriteJSON(message)
}

// SignalingSocket is the relay's connection endpoint:
//
//	GET /ws?meetingId=<room key>&userId=<participant id>&isHost=true
//
// The handshake parameters are immutable for the connection's lifetime. No
// authentication and no uniqueness check happen here; any non-empty meeting
// id materializes a room, access control is the meeting-link issuer's job.
func (ctrl *relayController) SignalingSocket(ctx echo.Context) error {
	meetingID := ctx.QueryParam("meetingId")
	userID := ctx.QueryParam("userId")
	if meetingID == "" || userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrInvalidHandshake.Error())
	}
	isHost := ctx.QueryParam("isHost") == "true"

	conn, err := ctrl.upgrader.Upgrade(ctx.Response().Writer, ctx.Request(), nil)
	if err != nil {
		ctrl.logger.Error(fmt.Sprintf("Unable upgrade request %+v", ctx.Request()))
		return err
	}

	w := wsutils.NewThreadSafeWriter(conn)
	defer w.Close()

	connID := ctrl.roomService.Join(meetingID, userID, isHost, w)
	defer ctrl.roomService.Leave(connID)

	for {
		message := &protocol.Envelope{}
		if err := w.ReadJSON(message); err != nil {
			// Graceful close and network failure land here alike; both are
			// a normal lifecycle transition, not an error path.
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				ctrl.logger.Error(fmt.Sprintf("%s | Read err: %s", conn.RemoteAddr(), err))
			}
			return nil
		}

		ctrl.dispatch(w, connID, userID, message)
	}
}

// dispatch relays one inbound frame. Offer, answer and candidate arrive in
// any order, any number of times; the relay keeps no negotiation state.
func (ctrl *relayController) dispatch(w *wsutils.ThreadSafeWriter, connID string, userID protocol.ParticipantID, message *protocol.Envelope) {
	switch message.Event {
	case protocol.EventOffer:
		var body protocol.OfferPayload
		if err := json.Unmarshal(message.Data, &body); err != nil {
			ctrl.wsError(w, err)
			return
		}
		ctrl.logRelay(message.Event, connID, userID, body.TargetID)
		_ = ctrl.roomService.Relay(connID, protocol.EventOffer, protocol.OfferBroadcast{
			Offer:    body.Offer,
			SenderID: userID,
		})

	case protocol.EventAnswer:
		var body protocol.AnswerPayload
		if err := json.Unmarshal(message.Data, &body); err != nil {
			ctrl.wsError(w, err)
			return
		}
		ctrl.logRelay(message.Event, connID, userID, body.TargetID)
		_ = ctrl.roomService.Relay(connID, protocol.EventAnswer, protocol.AnswerBroadcast{
			Answer:   body.Answer,
			SenderID: userID,
		})

	case protocol.EventICECandidate:
		var body protocol.CandidatePayload
		if err := json.Unmarshal(message.Data, &body); err != nil {
			ctrl.wsError(w, err)
			return
		}
		ctrl.logRelay(message.Event, connID, userID, body.TargetID)
		_ = ctrl.roomService.Relay(connID, protocol.EventICECandidate, protocol.CandidateBroadcast{
			Candidate: body.Candidate,
			SenderID:  userID,
		})

	default:
		ctrl.wsError(w, fmt.Errorf("%w: %q", ErrUnknownEvent, message.Event))
	}
}

func (ctrl *relayController) logRelay(event, connID string, userID, targetID protocol.ParticipantID) {
	// targetId is carried by clients but routing stays a room broadcast.
	ctrl.logger.Debug("relay",
		slog.String("event", event),
		slog.String("connId", connID),
		slog.String("senderId", userID),
		slog.String("targetId", targetID))
}

// RoomNotifierSocket streams rooms-updated pushes to observers until their
// socket closes. Reads are drained only to detect the close.
func (ctrl *relayController) RoomNotifierSocket(ctx echo.Context) error {
	conn, err := ctrl.upgrader.Upgrade(ctx.Response().Writer, ctx.Request(), nil)
	if err != nil {
		ctrl.logger.Error(fmt.Sprintf("Unable upgrade request %+v", ctx.Request()))
		return err
	}

	w := wsutils.NewThreadSafeWriter(conn)
	defer w.Close()

	id := uuid.NewString()
	ctrl.notifier.Listen(id, w)
	defer ctrl.notifier.Stop(id)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (ctrl *relayController) RoomList(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, protocol.RoomListResponse{
		Rooms: ctrl.roomService.ListRooms(),
	})
}

func (ctrl *relayController) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, protocol.HealthResponse{
		Status: "ok",
		Stats:  ctrl.roomService.Stats(),
	})
}

func (ctrl *relayController) Resolve(router protocol.HttpRouter) error {
	go ctrl.notifier.OnUpdateRooms(context.Background(), func(w wsutils.JSONWriter) {
		message, err := protocol.NewEnvelope(protocol.EventRoomsUpdated, nil)
		if err != nil {
			return
		}
		_ = w.WriteJSON(message)
	})

	router.GET("/ws", ctrl.SignalingSocket)
	router.GET("/ws/rooms", ctrl.RoomNotifierSocket)
	router.GET("/rooms", ctrl.RoomList)
	router.GET("/healthz", ctrl.Healthz)
	return nil
}

var _ protocol.HttpResolvable = (*relayController)(nil)

type newRelayController_Params struct {
	fx.In
	Lifecycle fx.Lifecycle

	RoomService  *RoomService
	RoomNotifier *RoomNotifier
	Logger       *slog.Logger
}

func NewRelayController(params newRelayController_Params) *relayController {
	return &relayController{
		lifecycle:   params.Lifecycle,
		roomService: params.RoomService,
		notifier:    params.RoomNotifier,
		logger:      params.Logger,
		upgrader: websocket.Upgrader{
			// Browsers are pinned to the configured client origin;
			// non-browser peers send no Origin header and pass.
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == clientOrigin
			},
		},
	}
}
