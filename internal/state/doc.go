// Package state provides filesystem-backed storage for conversation history
// and sync summaries.
package state

import "github.com/user/healthchat/internal/types"

// Compile-time interface compliance checks.
var _ types.HistoryStore = (*HistoryLog)(nil)
var _ types.SummaryStore = (*SummaryStore)(nil)
