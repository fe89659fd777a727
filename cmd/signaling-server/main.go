package main

import (
	"github.com/mentorhub/mentoring-platform/signaling-server/internal/relay"
	globalprotocol "github.com/mentorhub/mentoring-platform/signaling-server/pkg/protocol"
	"github.com/mentorhub/mentoring-platform/signaling-server/pkg/service"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(
			relay.NewRoomNotifier,
			relay.NewRoomService,

			globalprotocol.AsHttpController(relay.NewRelayController),
		),

		service.LoggerModule,
		service.HttpModule,
	).Run()
}
