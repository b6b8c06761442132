// Package engine speaks the title-generation engine's batch contract.
// The engine itself is an opaque collaborator: it receives a chunk of
// SKU items and returns one result per item. This package owns the
// wire types, the HTTP binding, and the transient/permanent error
// split the retry controller depends on.
package engine

// Item is one normalized input record: the SKU identity plus the
// content fields the engine rewrites. The content fields (everything
// except SKU) are also what the change detector fingerprints.
type Item struct {
	SKU          string `json:"sku"`
	TituloOrigen string `json:"titulo_origen"`
	Marca        string `json:"marca"`
	Categoria    string `json:"categoria"`
}

// Options is the per-run configuration snapshot sent with every chunk.
type Options struct {
	// Mode selects the engine's processing mode, e.g. "seo_and_label".
	Mode string `json:"mode"`

	// DryRun asks the caller-side persister to skip the commit; the
	// engine computes titles either way.
	DryRun bool `json:"dry_run"`
}

// Request is the batch payload for POST /generate-titles.
type Request struct {
	BatchID string  `json:"batch_id"`
	Items   []Item  `json:"items"`
	Options Options `json:"options"`
}

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is one entry of the engine response. Order is not guaranteed
// to match the request; consumers must index by SKU.
type Result struct {
	SKU            string   `json:"sku"`
	OptimizedTitle string   `json:"optimized_title"`
	LabelTitle     string   `json:"label_title"`
	Warnings       []string `json:"warnings"`
	Status         string   `json:"status"`

	// Error carries the item-level rejection reason when Status is
	// "error". Not all engine versions populate it.
	Error string `json:"error,omitempty"`
}
