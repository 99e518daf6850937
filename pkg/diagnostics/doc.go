/*
Package diagnostics is the agent's internal, lossy ops-event bus.
Bus fans Events published to it (entry lifecycle, walk progress, flow
aging) out to any number of Subscribers without ever blocking a
publisher. No other package in this module publishes to a Bus. Intended for introspection tooling
and tests, not for anything the core invariants depend on.
*/
package diagnostics
