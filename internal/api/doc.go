// Package api serves the HTTP surface of the holdover daemon.
//
// # Endpoints
//
//   - POST /api/message   {"action":"change"|"revert"}, always answered {"response":"OK"}
//   - POST /api/activate  {"url":...}, applies the override for allowed sites
//   - GET  /api/status    current policy, saved record, badge and guard state
//   - GET  /api/history   recent transitions from the event journal
//   - GET  /api/logs      recent application log entries
//   - GET  /api/ws        WebSocket push of badge, transition and sweep events
//   - GET  /metrics       Prometheus exposition
//   - GET  /healthz, /readyz, /livez
//
// POST endpoints are rate limited per client IP.
package api
