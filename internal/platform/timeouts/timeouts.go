// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// DeliverySend caps one outbound delivery HTTP request.
const DeliverySend = 30 * time.Second

// Shutdown limits how long a long-running process waits for in-flight work
// during graceful shutdown.
const Shutdown = 5 * time.Second
