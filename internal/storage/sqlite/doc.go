// Package sqlite implements bank.Store with gorm on a pure-Go SQLite driver.
// It is the zero-infrastructure backend used for local demos and tests.
package sqlite
