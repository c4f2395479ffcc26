// Package dispatch is the entry point request handlers use to submit task
// writes. Each submission builds a fresh command envelope, hands it to the
// broker publisher and returns a Receipt carrying the message id. A Receipt
// means the command was accepted for asynchronous processing, not that it
// was applied.
package dispatch
