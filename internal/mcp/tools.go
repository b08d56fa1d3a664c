package mcp

import (
	"github.com/semidex/semidex/internal/index"
	"github.com/semidex/semidex/internal/search"
)

// SearchInput defines the input schema for the search_knowledge tool.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"the natural-language search query"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results, default from configuration"`
	MinSimilarity float64  `json:"min_similarity,omitempty" jsonschema:"minimum cosine similarity in [-1,1], default from configuration"`
	Files         []string `json:"files,omitempty" jsonschema:"restrict to exact workspace-relative file paths (OR within the list)"`
	Folders       []string `json:"folders,omitempty" jsonschema:"restrict to folders: bare name matches anywhere, leading slash anchors at the workspace root, * patterns are used verbatim"`
}

// SearchOutput defines the output schema for the search_knowledge tool.
type SearchOutput struct {
	Results []search.Result `json:"results" jsonschema:"matched chunks ordered by descending similarity"`
	Cached  bool            `json:"cached,omitempty" jsonschema:"true when served from the session cache"`
}

// UpdateIndexInput defines the input schema for the update_index tool.
type UpdateIndexInput struct {
	ReindexAll bool `json:"reindex_all,omitempty" jsonschema:"rebuild the whole index instead of an incremental update"`
}

// UpdateIndexOutput defines the output schema for the update_index tool.
type UpdateIndexOutput struct {
	Started bool `json:"started"`
	Busy    bool `json:"busy,omitempty" jsonschema:"true when an update was already running"`
}

// CancelInput defines the (empty) input schema for cancel_indexing.
type CancelInput struct{}

// CancelOutput defines the output schema for cancel_indexing.
type CancelOutput struct {
	WasRunning bool `json:"was_running"`
}

// StatusInput defines the (empty) input schema for index_status.
type StatusInput struct{}

// StatusOutput defines the output schema for index_status.
type StatusOutput struct {
	Status   index.Status `json:"status"`
	Indexing *index.Event `json:"indexing,omitempty" jsonschema:"latest progress event when an update is or was running"`
}

// ReinitializeInput defines the (empty) input schema for reinitialize_index.
type ReinitializeInput struct{}

// ReinitializeOutput defines the output schema for reinitialize_index.
type ReinitializeOutput struct {
	Cleared bool `json:"cleared"`
}
