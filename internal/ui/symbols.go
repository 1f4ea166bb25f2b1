package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess = "●" // Host answered
	SymbolFail    = "✗" // Host failed
	SymbolPending = "○" // Not polled yet
)
