//go:build integration

// Package testdb provides database helpers for integration tests.
//
// Tests that need PostgreSQL call GetTestDB, which skips the test unless
// TASKS_TEST_DATABASE_URL is set, migrates the schema once per process and
// returns a shared pool. WithTx runs each test inside a transaction that is
// always rolled back, so tests can run in parallel without cleanup.
//
//	func TestSomething(t *testing.T) {
//		db := testdb.GetTestDB(t)
//		testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//			// use tx
//		})
//	}
package testdb
