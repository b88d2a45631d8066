// Package notify fans sync notices out to the configured sinks. The log
// sink is always present; Telegram and Discord are optional and also accept
// a couple of chat commands for driving the engine remotely.
package notify

import (
	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
)

// Notifier receives human-readable sync notices.
type Notifier interface {
	Notify(msg string)
}

// Controller is the engine surface exposed to chat commands.
type Controller interface {
	RequestSync()
	StatusLine() string
}

// Fanout forwards each notice to every sink.
type Fanout struct {
	sinks []Notifier
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(sinks ...Notifier) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add appends a sink.
func (f *Fanout) Add(n Notifier) {
	f.sinks = append(f.sinks, n)
}

// Notify forwards the notice to every sink.
func (f *Fanout) Notify(msg string) {
	for _, s := range f.sinks {
		s.Notify(msg)
	}
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates the log sink.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logging.Component("notify")}
}

// Notify logs the notice at info level.
func (n *LogNotifier) Notify(msg string) {
	n.log.Info().Msg(msg)
}
