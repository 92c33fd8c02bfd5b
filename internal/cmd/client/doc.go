// Package client provides the `walkin` command-line client.
//
// Every command talks to the HTTP API of a running server. The base URL
// comes from WALKIN_HTTP (default http://127.0.0.1:8080); staff commands
// send WALKIN_TOKEN as a bearer token when it is set.
//
// Usage
//
//	walkin session create --user u-42
//	walkin queue join --customer c-1 --service inquiry --plate ABC123 --session <id>
//	walkin queue get --id <entry-id>
//	walkin queue active --filter 'service_type == "direct_work_order"'
//	walkin queue watch
//
//	# Staff
//	walkin queue call-next --technician tech-1
//	walkin queue status --id <entry-id> --status served
//	walkin queue requeue --id <entry-id>
//	walkin workorders pull --consumer shop-floor --count 5
//	walkin workorders complete --seq 3 --seq 4
package client
