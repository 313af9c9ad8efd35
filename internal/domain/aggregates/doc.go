// Package aggregates defines the domain-facing aggregate contracts for
// the escrow engine.
//
// The contracts avoid persistence and transport detail: they name the
// semantic write boundaries where lifecycle invariants must hold
// atomically, and the error codes those boundaries surface.
package aggregates
