// Package job defines the job entity, its state machine, and the job
// record store interface.
//
// # Job Entity
//
// A [Job] is one execution of a process. It carries the opaque inputs
// supplied at creation and moves through the state machine:
//
//	accepted → running → successful
//	accepted → running → failed
//	accepted → running → dismissed
//	accepted → dismissed
//
// successful, failed and dismissed are terminal. No transition leaves a
// terminal state.
//
// # Optimistic Concurrency
//
// Every job carries a Version. [Store.TransitionJob] replaces the stored
// record only when both its status and version still match what the caller
// read, so concurrent transitions on one job have exactly one winner. The
// loser receives processes.ErrConflict.
package job
