// Package postgres stores prediction history in PostgreSQL. The schema is managed with
// embedded tern migrations applied under an advisory lock.
package postgres
