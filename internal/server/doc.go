// Package server runs intake-bot.
//
// New wires the SQLite store, the dialogue engine, the dispatcher and the
// MAX client from a config.Config. Run then serves one HTTP listener with:
//
//	GET  /health        liveness
//	GET  /health/ready  200 once the token is verified
//	GET  /metrics       Prometheus, when metrics.enabled
//	POST /webhook       platform deliveries, in webhook mode
//
// In polling mode a loop calls GET /updates with the last marker and backs
// off after transport errors. Cancelling the context passed to Run stops
// everything and closes the store.
package server
