// Package domain contains core concepts of the direct messaging system.
// This file defines the presence related values.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Presence describes a live connection bound to an identity.
type Presence struct {
	Identity     Identity
	ConnectionID string
	ConnectedAt  time.Time
}
