// Package sqlite persists instances, events and worlds in a SQLite database
// through sqlx. An event and the instance it belongs to are written in one
// transaction, so a failure leaves either both or neither behind.
package sqlite
