// Package mocks holds shared test doubles for the service boundaries:
// auth.JWTService, dispatch.Service, dispatch.Publisher and store.TaskStore.
//
// The function-field mocks return their default fields unless the matching
// Fn is set, and record calls where tests need to inspect them:
//
//	dispatcher := &mocks.MockDispatchService{MessageID: "m-1"}
//	handler := api.NewTaskHandler(dispatcher, taskStore, logger)
//	// ... exercise handler ...
//	calls := dispatcher.Calls()
//
// TestifyMockTaskStore uses testify/mock expectations instead.
package mocks
