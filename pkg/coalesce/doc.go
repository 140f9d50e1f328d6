// Package coalesce deduplicates concurrent calls to the same operation with the
// same arguments.
//
// A Cache maps a key derived from an operation identifier and its serialized
// arguments to the single execution currently in flight for that key. Callers
// arriving while an execution is in flight wait for it and receive the same
// value or the same error. The entry is removed as soon as the execution
// returns, before any waiter is released, so a call made after completion
// always starts a fresh execution. Failures are never cached.
//
// A Cache is owned by the component that needs deduplication; there is no
// package-level table. Two components sharing one Cache share entries only
// when their identifiers match, so identifiers should carry whatever scope
// (chain, network, instance) distinguishes their results.
//
// The typed helpers Wrap0..Wrap3 return a function with the same signature as
// the wrapped one. WrapValue0 and WrapValue1 cover functions that return a
// value without a context or an error.
package coalesce
