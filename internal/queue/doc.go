// Package queue provides a bounded FIFO queue used to hold the speech
// chunks waiting to be synthesized and played.
package queue
