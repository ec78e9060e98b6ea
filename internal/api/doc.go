// Package api implements the HTTP monitor and WebSocket telegram stream
// for the knxtest harness.
//
// This package provides:
//   - REST endpoints listing the simulated devices and their state
//   - Bus inspection and injection (GET/PUT /api/v1/bus/{ga})
//   - The value codec over HTTP (POST /api/v1/values/decode, /encode)
//   - Suite runs on demand (POST /api/v1/runs)
//   - WebSocket hub broadcasting every telegram and finished run
//   - Request IDs, access logging, panic recovery and a body size cap
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Group addresses in URLs
//
// Addresses contain slashes, so routes take them URL-encoded:
// /api/v1/bus/2%2F1%2F17.
//
// # WebSocket channels
//
// Telegram events are published on "bus.telegram/<ga>". Subscribing to
// "bus.telegram" follows every address; "run.finished" carries reports.
//
// There is no authentication. The server binds to loopback by default.
package api
