// Package util provides small concurrency helpers shared by the client packages.
//
// MPSC is an unbounded multi-producer single-consumer queue whose producers
// never block. The client uses it to hand received events from the stream
// goroutine to the dispatch goroutine.
package util
