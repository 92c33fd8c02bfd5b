// Package runtime wires configuration into a running walk-in queue: it
// opens the selected store backend, the read cache, event sinks and the
// work-order outbox, and builds the queue engine on top of them.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	entry, _ := rt.Engine().Join(ctx, queue.JoinData{CustomerID: "c1", ServiceType: queue.ServiceInquiry})
package runtime
