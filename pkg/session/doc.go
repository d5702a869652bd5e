/*
Package session serializes access to workflow states.

A Manager wraps a ports.StateStore with a per-request mutex, so that a Run and
a Resume of the same request never interleave inside one process. With a
ports.DistributedLocker it extends the guarantee across engine replicas that
share a store.
*/
package session
