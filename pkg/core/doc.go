// Package core holds the types shared by every layer of delay: the
// persisted Job row a deferred call travels in, the Storage contract that
// the GORM and Redis backends satisfy, the events a Queue publishes, and
// the errors a deferred method returns to steer retries.
//
// Applications normally use the root package github.com/jdziat/simple-delay,
// which re-exports what they need from here.
package core
