// Package httpserver provides the REST gateway for the walk-in queue: JSON
// endpoints for sessions, entries and staff actions, a QR ticket image, an
// SSE stream of the active list and the work-order drain endpoints.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
