// Package protocol decodes fixed-width, position-addressed text messages.
//
// Ownership boundary:
// - envelope checks (declared length, type code window)
// - field extraction and coercion primitives
// - the schema-driven recursive decoder
package protocol
