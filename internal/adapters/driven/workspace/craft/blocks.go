package craft

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/logger"
)

// AppendMarkdown adds markdown to a page at the given position.
func (c *Client) AppendMarkdown(ctx context.Context, pageID, markdown, position string) error {
	if position == "" {
		position = driven.PositionEnd
	}
	_, err := c.callTool(ctx, "markdown_add", map[string]any{
		"markdown": markdown,
		"position": map[string]any{
			"pageId":   pageID,
			"position": position,
		},
	})
	return err
}

// ListBlocks returns the blocks of a page.
func (c *Client) ListBlocks(ctx context.Context, pageID string) ([]driven.Block, error) {
	payload, err := c.callTool(ctx, "blocks_get", map[string]any{"pageId": pageID})
	if err != nil {
		return nil, err
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		if blocks, ok := v["blocks"].([]any); ok {
			items = blocks
		}
	}

	blocks := make([]driven.Block, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		blocks = append(blocks, driven.Block{
			ID:      stringField(obj, "id"),
			Content: blockText(obj),
		})
	}
	return blocks, nil
}

// UpdateBlock replaces a block's content.
func (c *Client) UpdateBlock(ctx context.Context, blockID, content string) error {
	_, err := c.callTool(ctx, "blocks_update", map[string]any{
		"blockId": blockID,
		"content": content,
	})
	return err
}

// DeleteBlock removes a block.
func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	_, err := c.callTool(ctx, "blocks_delete", map[string]any{"blockId": blockID})
	return err
}

// UpdateMainDocument applies a targeted block-level mutation: delete blocks
// matching DeletePattern, update the first block matching SectionToUpdate,
// and otherwise append when AppendIfNotFound is set.
func (c *Client) UpdateMainDocument(ctx context.Context, update driven.MainDocumentUpdate) error {
	blocks, err := c.ListBlocks(ctx, update.PageID)
	if err != nil {
		return err
	}

	if update.DeletePattern != "" {
		pattern, err := regexp.Compile("(?i)" + update.DeletePattern)
		if err != nil {
			return fmt.Errorf("compile delete pattern: %w", err)
		}
		for _, block := range blocks {
			if !pattern.MatchString(block.Content) {
				continue
			}
			if err := c.DeleteBlock(ctx, block.ID); err != nil {
				logger.Warn("delete block %s: %v", block.ID, err)
			}
		}
	}

	if update.SectionToUpdate != "" {
		for _, block := range blocks {
			if !containsFold(block.Content, update.SectionToUpdate) {
				continue
			}
			return c.UpdateBlock(ctx, block.ID, update.NewContent)
		}
	}

	if update.AppendIfNotFound && update.NewContent != "" {
		return c.AppendMarkdown(ctx, update.PageID, update.NewContent, driven.PositionEnd)
	}
	return nil
}

// RegenerateSection deletes the blocks under the heading matching
// sectionName, up to but excluding the next heading of the same or higher
// level, then appends the new markdown.
func (c *Client) RegenerateSection(ctx context.Context, pageID, sectionName, newMarkdown string) error {
	blocks, err := c.ListBlocks(ctx, pageID)
	if err != nil {
		return err
	}

	start, level := findHeading(blocks, sectionName)
	if start < 0 {
		// Section never existed; the new content still belongs on the page.
		return c.AppendMarkdown(ctx, pageID, newMarkdown, driven.PositionEnd)
	}

	for i := start; i < len(blocks); i++ {
		if i > start {
			if l := headingLevel(blocks[i].Content); l > 0 && l <= level {
				break
			}
		}
		if err := c.DeleteBlock(ctx, blocks[i].ID); err != nil {
			logger.Warn("delete block %s: %v", blocks[i].ID, err)
		}
	}

	return c.AppendMarkdown(ctx, pageID, newMarkdown, driven.PositionEnd)
}

// findHeading returns the index and level of the first heading block whose
// text matches sectionName, or -1.
func findHeading(blocks []driven.Block, sectionName string) (int, int) {
	for i, block := range blocks {
		level := headingLevel(block.Content)
		if level == 0 {
			continue
		}
		if containsFold(block.Content, sectionName) {
			return i, level
		}
	}
	return -1, 0
}

// headingLevel returns the markdown heading level of a block, or 0 for a
// non-heading block.
func headingLevel(content string) int {
	trimmed := strings.TrimSpace(content)
	level := 0
	for _, r := range trimmed {
		if r != '#' {
			break
		}
		level++
	}
	if level == 0 || level >= len(trimmed) || trimmed[level] != ' ' {
		return 0
	}
	return level
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
