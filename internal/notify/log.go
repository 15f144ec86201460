package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogDispatcher writes notifications to the structured log. It is the
// always-available channel and can't meaningfully fail.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(ctx context.Context, message string) error {
	d.log.Info().Str("channel", "log").Msg(message)
	return nil
}
