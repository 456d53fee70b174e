// Package buffer owns the memory backing generated relations.
//
// # Lifecycle
//
// A Buffer moves through Unallocated → Filling → Ready → Released. Workers
// write disjoint ranges while Filling; Seal makes the region read-only and
// moves it to Ready; Release unmaps it. Released is terminal.
//
// # Memory
//
// On unix the region is an anonymous private mapping, so no page is touched
// until a worker first writes it and each page ends up on the NUMA node of
// the worker that filled it. Other platforms use the Go heap.
//
// The Allocator counts allocations and releases and can enforce a memory
// budget; a request that does not fit fails with ErrAllocationFailure without
// mapping anything.
package buffer
