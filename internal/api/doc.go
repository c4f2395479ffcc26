// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. Task writes are handed to the dispatch service
// and acknowledged with 202 Accepted; reads are served from the task store.
package api
