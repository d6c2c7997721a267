// Package ctlplane exposes the override controller over net/rpc on a Unix
// socket. The holdover CLI is its only client.
//
// Every RPC has an Args/Reply pair in types.go, a Server method, and a
// matching method on ControlPlaneClient, its socket Client and the testify
// mock. Command RPCs always answer "OK" and carry the real outcome
// alongside for callers that want it.
package ctlplane
