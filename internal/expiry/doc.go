// Package expiry tracks food items and runs the daily check that tells the
// user what has expired or is about to.
package expiry
