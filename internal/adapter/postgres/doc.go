// Package postgres implements the durable stores: reading history and
// subscriptions, plus connection setup and embedded migrations.
package postgres
