// Package reminder keeps the daily expiration check registered with the
// background task runner and renders delays for humans.
package reminder
