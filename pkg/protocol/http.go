package protocol

import (
	echo "github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const httpControllerTag = `group:"http.controller"`

type HttpRouter = *echo.Echo

// HttpResolvable lets a controller attach its routes once the router exists.
type HttpResolvable interface {
	Resolve(HttpRouter) error
}

// AsHttpController annotates a controller constructor so the http module
// collects it through the fx value group.
func AsHttpController(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(HttpResolvable)),
		fx.ResultTags(httpControllerTag),
	)
}
