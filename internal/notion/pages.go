package notion

import (
	"context"
	"encoding/json"
	"fmt"
)

const maxChildrenPerCall = 100

// Properties is a page or database-query-filter payload, passed through as
// opaque JSON — callers build the exact shape the remote API expects.
type Properties map[string]any

// Block is one child block in a page's content tree.
type Block map[string]any

// Icon is a page-level icon (emoji or external image).
type Icon map[string]any

// Page is the subset of the remote page object callers need.
type Page struct {
	ID         string                     `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type createPageRequest struct {
	Parent     map[string]any `json:"parent"`
	Properties Properties     `json:"properties"`
	Children   []Block        `json:"children,omitempty"`
	Icon       Icon           `json:"icon,omitempty"`
}

type pageResponse struct {
	ID string `json:"id"`
}

// CreatePage creates a page in databaseID with properties and icon, then
// appends any children beyond the first 100 via follow-up
// append_block_children calls, each batched at 100 — the remote API's
// per-request child limit.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties Properties, children []Block, icon Icon) (string, error) {
	head := children
	var tail []Block
	if len(children) > maxChildrenPerCall {
		head = children[:maxChildrenPerCall]
		tail = children[maxChildrenPerCall:]
	}

	reqBody := createPageRequest{
		Parent:     map[string]any{"database_id": databaseID},
		Properties: properties,
		Children:   head,
		Icon:       icon,
	}

	respBody, err := c.do(ctx, "POST", "/pages", reqBody)
	if err != nil {
		return "", fmt.Errorf("notion: create_page: %w", err)
	}

	var resp pageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("notion: create_page: decoding response: %w", err)
	}

	if len(tail) > 0 {
		if err := c.AppendBlockChildren(ctx, resp.ID, tail); err != nil {
			return resp.ID, fmt.Errorf("notion: create_page: appending remaining children: %w", err)
		}
	}

	return resp.ID, nil
}

// UpdatePage patches a page's properties.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties Properties) error {
	_, err := c.do(ctx, "PATCH", "/pages/"+pageID, map[string]any{"properties": properties})
	if err != nil {
		return fmt.Errorf("notion: update_page %s: %w", pageID, err)
	}
	return nil
}

type appendBlockChildrenRequest struct {
	Children []Block `json:"children"`
}

// AppendBlockChildren appends children to pageID in batches of 100.
func (c *Client) AppendBlockChildren(ctx context.Context, pageID string, children []Block) error {
	for start := 0; start < len(children); start += maxChildrenPerCall {
		end := start + maxChildrenPerCall
		if end > len(children) {
			end = len(children)
		}
		batch := children[start:end]

		_, err := c.do(ctx, "PATCH", "/blocks/"+pageID+"/children", appendBlockChildrenRequest{Children: batch})
		if err != nil {
			return fmt.Errorf("notion: append_block_children %s (batch %d-%d): %w", pageID, start, end, err)
		}
	}
	return nil
}

type queryDatabaseRequest struct {
	Filter      any    `json:"filter,omitempty"`
	Sorts       any    `json:"sorts,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type queryDatabaseResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// QueryDatabase runs a filtered, sorted query against databaseID,
// transparently following next_cursor pagination until exhausted.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter, sorts any) ([]Page, error) {
	var all []Page
	cursor := ""

	for {
		reqBody := queryDatabaseRequest{Filter: filter, Sorts: sorts, StartCursor: cursor}
		respBody, err := c.do(ctx, "POST", "/databases/"+databaseID+"/query", reqBody)
		if err != nil {
			return nil, fmt.Errorf("notion: query_database %s: %w", databaseID, err)
		}

		var resp queryDatabaseResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("notion: query_database %s: decoding response: %w", databaseID, err)
		}

		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	return all, nil
}

// FindPageByMessageID is the duplicate-guard query: exactly one page
// should match a given Message ID property value. A query failure is
// propagated rather than treated as absence, since the caller must not
// mistake "could not check" for "does not exist".
func (c *Client) FindPageByMessageID(ctx context.Context, databaseID, messageIDPropertyName, messageID string) (*Page, error) {
	filter := map[string]any{
		"property": messageIDPropertyName,
		"rich_text": map[string]any{
			"equals": messageID,
		},
	}

	pages, err := c.QueryDatabase(ctx, databaseID, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("notion: find_page_by_message_id: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return &pages[0], nil
}
