// Package grpcserver hosts the gRPC server. It serves the standard
// grpc.health.v1 service, reporting "walkin.queue" as SERVING while the
// runtime health check passes.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt, logger, 0)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
