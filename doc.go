// Package surge implements the realtime connection subsystem of a client
// library for a pub/sub messaging service: a persistent, authenticated,
// full-duplex session with a remote endpoint that delivers outbound
// protocol frames, dispatches inbound ones to per-channel subscribers, and
// manages connection lifecycle, resume/recover, heartbeats, host failover,
// and acknowledgement tracking.
//
// The primary lifecycle is:
//   - construct a Client with NewClient
//   - Connect to begin the Initialized->Connecting transition
//   - Send messages once Connected; ack-required frames resolve or reject
//     through the returned future
//   - Close when finished
//
// Client is safe for concurrent use from multiple goroutines. Callback
// handlers registered on the message bus run synchronously on the
// connection's dispatch goroutine and should not block.
package surge
