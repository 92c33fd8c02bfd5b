// Package queuesvc is the transport-facing facade over the queue engine and
// the work-order outbox. HTTP handlers, the gRPC health service and tests
// all go through it.
//
// Example:
//
//	svc := queuesvc.New(rt)
//	sess, _ := svc.CreateSession(ctx, "user-7")
//	entry, _ := svc.Join(ctx, queue.JoinData{CustomerID: "c1", ServiceType: queue.ServiceInquiry, SessionID: sess.ID})
//	png, _ := svc.TicketPNG(ctx, entry.ID, 256)
//	// Staff side
//	next, _ := svc.CallNext(ctx, "tech-1")
//	active, _ := svc.Active(ctx, `status == "waiting" && waited_ms > 600000`)
package queuesvc
