// Package events provides queue.EventSink implementations: an in-memory
// recorder, a structured-log sink, Redis PUBLISH, an AMQP fanout exchange
// and a fan-out combinator.
package events
