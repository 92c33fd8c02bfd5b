// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the queue runtime with gRPC and HTTP servers, handling lifecycle and
// shutdown.
//
// Example:
//
//	cfg, err := serverrun.ResolveConfig("walkin.yaml", serverrun.Overrides{HTTPAddr: ":8080"})
//	if err != nil {
//	    return err
//	}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
