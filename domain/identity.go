// Package domain contains core concepts of the conversation messaging system.
// This file defines the verified identity bound to a live connection.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is extracted from a verified credential at handshake time.
// It is immutable for the lifetime of the connection.
type Identity struct {
	ID          string
	DisplayName string
	Role        string
}
