package variables

import (
	"log"
	"os"
)

const (
	HTTP_PORT_DEFAULT = "5000"
	HTTP_PORT_NAME    = "HTTP_PORT"

	CLIENT_ORIGIN_DEFAULT = "http://localhost:3000"
	CLIENT_ORIGIN_NAME    = "CLIENT_ORIGIN"

	LOG_LEVEL_DEFAULT = "debug"
	LOG_LEVEL_NAME    = "LOG_LEVEL"
)

func Env(variableName, defaultValue string) string {
	if variable := os.Getenv(variableName); variable != "" {
		log.Printf("[%s]: %s", variableName, variable)
		return variable
	}
	log.Printf("[%s_DEFAULT]: %s", variableName, defaultValue)
	return defaultValue
}
