package driven

import "context"

// Positions for markdown and collection placement on a page.
const (
	PositionStart = "start"
	PositionEnd   = "end"
)

// DocumentRef is a workspace document id/title pair.
type DocumentRef struct {
	ID    string
	Title string
}

// Block is one content block of a workspace page. Content carries whichever
// of the remote protocol's content/text/markdown fields was present.
type Block struct {
	ID      string
	Content string
}

// CollectionProperty is one typed column of a collection schema.
type CollectionProperty struct {
	Name string
	Type string // "text", "date" or "number"
}

// CollectionSchema describes a collection to create. ContentKey names the
// content property the remote workspace keys items by; it differs per
// collection and items inserted under the wrong key are silently dropped.
type CollectionSchema struct {
	Name       string
	ContentKey string
	Properties []CollectionProperty
}

// CollectionItem is one row to append to a collection. The map must contain
// the schema's ContentKey.
type CollectionItem map[string]any

// MainDocumentUpdate is a targeted block-level mutation of the root page.
type MainDocumentUpdate struct {
	PageID string

	// SectionToUpdate, when set, updates the first block whose text matches
	// it (case-insensitive substring).
	SectionToUpdate string

	// NewContent is the replacement or appended markdown.
	NewContent string

	// DeletePattern, when set, deletes every block whose text matches the
	// pattern (regexp, case-insensitive).
	DeletePattern string

	// AppendIfNotFound appends NewContent at the end when no block matched
	// SectionToUpdate.
	AppendIfNotFound bool
}

// Workspace is the typed wrapper over the document-service tool protocol.
// One Workspace is bound to one endpoint.
type Workspace interface {
	// ListDocuments returns all documents in the workspace. This is the
	// authoritative existence source; search may lag it.
	ListDocuments(ctx context.Context) ([]DocumentRef, error)

	// SearchDocuments queries the workspace search index. Results may lag
	// the canonical state; use only as a fallback.
	SearchDocuments(ctx context.Context, query string) ([]DocumentRef, error)

	// DocumentExists probes for a document by exact case-insensitive title.
	// The empty id with found=false means the document is absent.
	DocumentExists(ctx context.Context, title string) (id string, found bool, err error)

	// CreateDocument creates a document at the workspace root.
	CreateDocument(ctx context.Context, title string) (id string, err error)

	// DeleteDocument removes a document.
	DeleteDocument(ctx context.Context, id string) error

	// AppendMarkdown adds markdown to a page at the given position.
	AppendMarkdown(ctx context.Context, pageID, markdown, position string) error

	// ListBlocks returns the blocks of a page.
	ListBlocks(ctx context.Context, pageID string) ([]Block, error)

	// UpdateBlock replaces a block's content.
	UpdateBlock(ctx context.Context, blockID, content string) error

	// DeleteBlock removes a block.
	DeleteBlock(ctx context.Context, blockID string) error

	// CreateCollection creates a collection with the given schema at the
	// given position of a page and returns its id.
	CreateCollection(ctx context.Context, pageID string, schema CollectionSchema, position string) (id string, err error)

	// AddCollectionItems appends items to a collection.
	AddCollectionItems(ctx context.Context, collectionID string, items []CollectionItem) error

	// UpdateMainDocument applies a targeted block-level mutation.
	UpdateMainDocument(ctx context.Context, update MainDocumentUpdate) error

	// RegenerateSection deletes the blocks under the heading matching
	// sectionName up to the next same-or-higher heading, then appends the
	// new markdown.
	RegenerateSection(ctx context.Context, pageID, sectionName, newMarkdown string) error
}

// WorkspaceFactory creates a Workspace bound to an endpoint. Clients are
// created per connection per cycle.
type WorkspaceFactory interface {
	New(ctx context.Context, endpoint string) (Workspace, error)
}
