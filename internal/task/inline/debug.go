// ABOUTME: debug inline function: logs a message at a given level for workflow troubleshooting
// ABOUTME: Adapted from the teacher's internal/tasks/debug, generalized to the inline function contract

package inline

import (
	"context"

	"github.com/rs/zerolog/log"
)

func debugFunc(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	message, _ := args["message"].(string)
	level, _ := args["level"].(string)
	if level == "" {
		level = "info"
	}

	evt := log.Info()
	switch level {
	case "debug":
		evt = log.Debug()
	case "warn":
		evt = log.Warn()
	case "error":
		evt = log.Error()
	}
	evt.Str("source", "inline.debug").Msg(message)

	return map[string]interface{}{
		"message": message,
		"level":   level,
	}, nil
}
