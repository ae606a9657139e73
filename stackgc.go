// ABOUTME: Root stackgc package providing version information and package documentation
// ABOUTME: The collector lives in vm, heap analysis in graph and heapdump

// Package stackgc is a tracing mark-and-sweep collector embedded in a small
// stack machine. Objects are integers and pairs; liveness is reachability from
// the machine's root stack. The graph and heapdump packages analyse and
// serialise snapshots of a machine heap.
package stackgc

// Version is the semantic version of the stackgc module
const Version = "0.1.0-dev"
