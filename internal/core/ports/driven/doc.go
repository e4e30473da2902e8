// Package driven defines the interfaces the core services consume:
// the version-control provider, the workspace client, the analysis oracle
// and the stores. Adapters implement these interfaces.
package driven
