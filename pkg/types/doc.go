/*
Package types defines the shared identifiers and well-known names used
throughout the agent.

It holds only the small value types that more than one package needs to
agree on: the process-wide well-known VN/VRF names and the protocol
numbers used by flow keys. Everything else (Entry, Table, FlowEntry,
Task, task class names) lives in the package that owns its lifecycle
(db, flowtable, scheduler, agent) rather than here — only the bare
identifiers more than one package needs to agree on belong here.
*/
package types
