// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Three services make up the sync pipeline: the Materialiser turns a
// repository into a fresh engineering brain document, the Processor turns
// classified changes into workspace mutations, and the Engine schedules
// per-connection sync cycles.
package services
