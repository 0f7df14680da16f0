// Package factory defines the boundary between the compiler and the units it
// produces. A Factory represents a compiled program: it carries its identity
// (name, content hash, expanded source, library list), can create runnable
// DSP instances and can serialise itself. Backends (archive, generated
// source, ...) implement Factory and, when their encoding is self-describing,
// provide a Reader that the Readers registry tries in registration order.
//
// Absence is not failure: CreateDSPInstance and Reader.Read return nil with a
// nil error when the factory cannot produce an instance or the stream is not
// recognised. Errors are reserved for I/O on the provided streams.
//
// A factory performs no internal locking. Write never mutates it; callers
// sharing a factory between goroutines must serialise SetSHAKey and SetDSPCode
// themselves.
package factory
