// Package command defines the task command envelope published to the
// work queue and the builder that produces it.
//
// An envelope is immutable once built. Every envelope carries a unique
// message identifier, a UTC creation timestamp and the source service tag,
// so consumers can deduplicate and trace commands independently of the
// transport.
package command
