// Package mysql implements bank.Store on MySQL. It owns connection pooling,
// the embedded schema migrations and the transactional transfer and
// application flows.
package mysql
