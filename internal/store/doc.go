// Package store defines interfaces for data persistence operations.
// The task read model is the only persisted entity this service reads;
// it is populated by the downstream command consumer.
package store
