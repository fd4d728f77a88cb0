// Package dispatch owns finalized frame tables.
//
// Finalize turns a declarative list of binding.FrameSpec into a Table sorted by
// id. A Table is immutable in shape after Finalize: Dispatch only changes the
// values behind its slots, and SendAll only reads them.
package dispatch
