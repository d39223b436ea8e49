package schemas

import "time"

// MaxHistoryEntries bounds how many turns the session store retains per
// session; older entries are dropped once this is exceeded.
const MaxHistoryEntries = 20

// HistoryTTL is how long a session's history survives in the session store
// without activity before Redis expires it.
const HistoryTTL = 24 * time.Hour

// SessionHistoryEntry is one turn of a session's conversational history, as
// persisted by the session store. Role is either "user" or "assistant".
type SessionHistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TrimHistory returns the last MaxHistoryEntries entries of entries,
// preserving order.
func TrimHistory(entries []SessionHistoryEntry) []SessionHistoryEntry {
	if len(entries) <= MaxHistoryEntries {
		return entries
	}
	return entries[len(entries)-MaxHistoryEntries:]
}
