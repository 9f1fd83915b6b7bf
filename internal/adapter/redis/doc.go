// Package redis keeps prediction history in Redis as one capped list per patient.
package redis
