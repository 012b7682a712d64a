/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest contains log.FieldLogger implementations for tests:
// Recorder keeps every logged entry in memory so assertions can be made on messages and fields,
// NewLogger returns a logger that writes human-readable JSON lines.
package logtest
