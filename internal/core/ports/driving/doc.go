// Package driving defines the interfaces the core exposes to its callers:
// the materialiser, the change processor and the sync engine. The HTTP API
// and CLI drive the core through these interfaces.
package driving
