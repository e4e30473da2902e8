package craft

import (
	"encoding/json"
	"strings"
)

// parsePayload decodes a tool-result payload. Replies are historically
// framed as "event: message\ndata: <json>"; newer servers return bare JSON.
// Neither parsing is an error the caller can recover from, so failure is a
// ProtocolError.
func parsePayload(tool, text string) (any, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, nil
	}

	if framed, ok := stripEventFraming(raw); ok {
		raw = framed
	}

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &ProtocolError{Tool: tool, Detail: "payload is neither framed nor raw JSON"}
	}
	return payload, nil
}

// stripEventFraming extracts the data line from an event-stream framed reply.
func stripEventFraming(text string) (string, bool) {
	if !strings.Contains(text, "data:") {
		return "", false
	}

	var data []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(rest))
		}
	}
	if len(data) == 0 {
		return "", false
	}
	return strings.Join(data, "\n"), true
}

// extractCollectionID pulls a collection id out of a collections_create
// reply. The remote protocol is historically inconsistent about the reply
// shape, so the known shapes are tried in order. Absence of any match is a
// hard protocol error, never a silent empty id.
func extractCollectionID(payload any) (string, error) {
	if s, ok := payload.(string); ok && s != "" {
		return s, nil
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return "", &ProtocolError{Tool: "collections_create", Detail: "reply carries no collection id"}
	}

	if id := stringField(obj, "collectionBlockId"); id != "" {
		return id, nil
	}
	if collections, ok := obj["collections"].([]any); ok && len(collections) > 0 {
		if first, ok := collections[0].(map[string]any); ok {
			if id := stringField(first, "id"); id != "" {
				return id, nil
			}
		}
	}
	if id := stringField(obj, "id"); id != "" {
		return id, nil
	}
	if result, ok := obj["result"].(map[string]any); ok {
		if id := stringField(result, "id"); id != "" {
			return id, nil
		}
	}
	if collection, ok := obj["collection"].(map[string]any); ok {
		if id := stringField(collection, "id"); id != "" {
			return id, nil
		}
	}

	return "", &ProtocolError{Tool: "collections_create", Detail: "reply carries no collection id"}
}

// stringField returns a non-empty string field of a decoded JSON object.
func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// documentRefs decodes a documents_list or documents_search payload. Both a
// bare array and an object wrapping a "documents" array occur in the wild.
func documentRefs(payload any) []map[string]any {
	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		if docs, ok := v["documents"].([]any); ok {
			items = docs
		} else if docs, ok := v["items"].([]any); ok {
			items = docs
		}
	}

	refs := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			refs = append(refs, obj)
		}
	}
	return refs
}

// blockText returns the display text of a decoded block object, which the
// remote protocol stores under content, text or markdown depending on the
// block type.
func blockText(obj map[string]any) string {
	for _, key := range []string{"content", "text", "markdown"} {
		if s := stringField(obj, key); s != "" {
			return s
		}
	}
	return ""
}
