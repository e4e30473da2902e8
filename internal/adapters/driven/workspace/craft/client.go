// Package craft implements the workspace port against a Craft document
// workspace reached over the MCP streamable HTTP transport. One client is
// bound to one workspace endpoint.
package craft

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/logger"
)

// DefaultTimeout is the per-call timeout for workspace operations.
const DefaultTimeout = 60 * time.Second

// clientVersion identifies this client to the workspace server.
const clientVersion = "0.1.0"

// Ensure Client implements the workspace port.
var _ driven.Workspace = (*Client)(nil)

// Client is a workspace client bound to one endpoint.
type Client struct {
	endpoint string
	mcp      *client.Client
}

// Factory creates workspace clients. A fresh client is created per
// connection per cycle so endpoint auth never goes stale.
type Factory struct{}

var _ driven.WorkspaceFactory = (*Factory)(nil)

// NewFactory creates a workspace client factory.
func NewFactory() *Factory {
	return &Factory{}
}

// New connects a workspace client to an endpoint.
func (f *Factory) New(ctx context.Context, endpoint string) (driven.Workspace, error) {
	return NewClient(ctx, endpoint)
}

// NewClient connects to the workspace endpoint and initialises the tool
// session.
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	httpTransport, err := transport.NewStreamableHTTP(
		endpoint,
		transport.WithHTTPTimeout(DefaultTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	mcpClient := client.NewClient(httpTransport)
	if err := mcpClient.Start(ctx); err != nil {
		return nil, &TransportError{Tool: "initialize", Err: err}
	}

	initRequest := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "repobrain",
				Version: clientVersion,
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initRequest); err != nil {
		return nil, &TransportError{Tool: "initialize", Err: err}
	}

	return &Client{endpoint: endpoint, mcp: mcpClient}, nil
}

// Endpoint returns the endpoint this client is bound to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close shuts down the tool session.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// callTool invokes one workspace tool and returns its decoded payload.
func (c *Client) callTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := c.mcp.CallTool(ctx, req)
	if err != nil {
		return nil, &TransportError{Tool: tool, Err: err}
	}

	text := joinTextContent(result)
	if result.IsError {
		return nil, &ProtocolError{Tool: tool, Detail: firstLine(text)}
	}

	return parsePayload(tool, text)
}

// joinTextContent concatenates the text blocks of a tool result.
func joinTextContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// firstLine truncates tool error text to its first line for error messages.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "tool reported an error"
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ListDocuments returns all documents in the workspace.
func (c *Client) ListDocuments(ctx context.Context) ([]driven.DocumentRef, error) {
	payload, err := c.callTool(ctx, "documents_list", map[string]any{})
	if err != nil {
		return nil, err
	}
	return decodeDocumentRefs(payload), nil
}

// SearchDocuments queries the workspace search index. The index lags the
// canonical state; callers use it as a fallback only.
func (c *Client) SearchDocuments(ctx context.Context, query string) ([]driven.DocumentRef, error) {
	payload, err := c.callTool(ctx, "documents_search", map[string]any{"query": query})
	if err != nil {
		return nil, err
	}
	return decodeDocumentRefs(payload), nil
}

func decodeDocumentRefs(payload any) []driven.DocumentRef {
	objs := documentRefs(payload)
	refs := make([]driven.DocumentRef, 0, len(objs))
	for _, obj := range objs {
		refs = append(refs, driven.DocumentRef{
			ID:    stringField(obj, "id"),
			Title: stringField(obj, "title"),
		})
	}
	return refs
}

// DocumentExists probes for a document by exact case-insensitive title.
// documents_list is authoritative; documents_search is only consulted when
// the listing fails, because its index lags the canonical state.
func (c *Client) DocumentExists(ctx context.Context, title string) (string, bool, error) {
	docs, err := c.ListDocuments(ctx)
	if err == nil {
		for _, doc := range docs {
			if strings.EqualFold(doc.Title, title) {
				return doc.ID, true, nil
			}
		}
		return "", false, nil
	}

	logger.Debug("documents_list failed, falling back to search: %v", err)
	results, searchErr := c.SearchDocuments(ctx, title)
	if searchErr != nil {
		return "", false, err
	}
	for _, doc := range results {
		if strings.EqualFold(doc.Title, title) {
			return doc.ID, true, nil
		}
	}
	return "", false, nil
}

// CreateDocument creates a document at the workspace root and returns its id.
func (c *Client) CreateDocument(ctx context.Context, title string) (string, error) {
	payload, err := c.callTool(ctx, "documents_create", map[string]any{
		"documents": []any{
			map[string]any{"title": title, "location": "root"},
		},
	})
	if err != nil {
		return "", err
	}

	if obj, ok := payload.(map[string]any); ok {
		if docs, ok := obj["documents"].([]any); ok && len(docs) > 0 {
			if first, ok := docs[0].(map[string]any); ok {
				if id := stringField(first, "id"); id != "" {
					return id, nil
				}
			}
		}
		if id := stringField(obj, "id"); id != "" {
			return id, nil
		}
	}
	if refs := documentRefs(payload); len(refs) > 0 {
		if id := stringField(refs[0], "id"); id != "" {
			return id, nil
		}
	}

	return "", &ProtocolError{Tool: "documents_create", Detail: "reply carries no document id"}
}

// DeleteDocument removes a document.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.callTool(ctx, "documents_delete", map[string]any{
		"documentIds": []any{id},
	})
	return err
}

// CreateCollection creates a collection with the given schema and returns
// its id, trying every reply shape the protocol has been seen to use.
func (c *Client) CreateCollection(ctx context.Context, pageID string, schema driven.CollectionSchema, position string) (string, error) {
	properties := make([]any, 0, len(schema.Properties))
	for _, p := range schema.Properties {
		properties = append(properties, map[string]any{
			"name": p.Name,
			"type": p.Type,
		})
	}

	payload, err := c.callTool(ctx, "collections_create", map[string]any{
		"name": schema.Name,
		"schema": map[string]any{
			"contentPropertyKey": schema.ContentKey,
			"properties":         properties,
		},
		"position": map[string]any{
			"pageId":   pageID,
			"position": position,
		},
	})
	if err != nil {
		return "", err
	}

	return extractCollectionID(payload)
}

// AddCollectionItems appends items to a collection.
func (c *Client) AddCollectionItems(ctx context.Context, collectionID string, items []driven.CollectionItem) error {
	encoded := make([]any, len(items))
	for i, item := range items {
		encoded[i] = map[string]any(item)
	}

	_, err := c.callTool(ctx, "collectionItems_add", map[string]any{
		"collectionBlockId": collectionID,
		"items":             encoded,
	})
	return err
}
