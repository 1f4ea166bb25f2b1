// Package monitor polls GPU status from a fleet of hosts over SSH.
//
// # Key Components
//
//	Registry  - One reusable SSH connection per host, replaced once it outlives its lifetime
//	Fetcher   - Runs the status script on one host and parses its CSV output
//	Poller    - Fans a fetch out to every host and returns results in host order
//	Sweeper   - Cron job that closes expired connections between polls
//
// # Connection Lifetime
//
// A connection's age is measured from when it was opened, not from when it
// was last used. A host that is polled every second still gets a fresh
// connection once the lifetime (default 30s) has passed. Expired
// connections are replaced on the next Acquire, and the Sweeper closes the
// ones nobody asks for.
//
// # Locking
//
// Acquire returns a Lease that pins the host's connection until Release.
// Competing callers for the same host wait for the lease; callers for other
// hosts do not. Sweep skips leased hosts instead of waiting.
//
// # Failures
//
// Fetch never returns an error. Connect, auth, exec and parse failures all
// become a HostResult with Success false, so one bad host can't fail a poll.
package monitor
