// Package log is the structured logging facade used across walkin.
//
// Components receive a Logger and add context with Field values:
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.WithComponent("queue")
//	l.Info("entry added", log.Str("id", id), log.Int("position", pos))
//
// Records flow through log/slog into a bridge handler that applies the
// configured Formatter and writes to every Output. ApplyConfig builds a logger
// from a declarative Config, and RedirectStdLog routes the standard library
// logger (used by Pebble) through the same pipeline.
package log
