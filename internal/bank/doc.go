// Package bank defines the customer, account, application, transaction and
// policy records the assistant's tools operate on, together with the Store
// contract implemented by the memory, MySQL and SQLite backends.
package bank
