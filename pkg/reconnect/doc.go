// Package reconnect brings a serial device back after its link is lost.
//
// The device layer never retries: an exchange that times out surfaces as an
// error and the caller decides what to do. Long-running hosts such as the
// HTTP bridge pair a keepalive with a Supervisor. When the keepalive
// declares the link lost, the supervisor calls an OpenFunc with
// exponential backoff until a fresh device completes its version
// handshake:
//
//  1. First retry after 2s, enough for a board that resets on open
//  2. Doubling delays: 4s, 8s, 16s
//  3. Capped at 30s until a reopen succeeds
//  4. Back to 2s after each success
//
// Each delay carries up to 20% random jitter:
//
//	actual_delay = base_delay + random(0, base_delay * 0.2)
//
// A reopened board has restarted its sketch. Pin modes and outputs are back
// at their power-on values and the pin registry starts empty, so components
// must register again.
package reconnect
