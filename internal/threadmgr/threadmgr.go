// Package threadmgr maintains the rule that the newest message in a
// thread is the designated head: every other message in the same thread
// has its Parent Item relation pointing at the head, and the head's
// Sub-item relation lists every other member.
package threadmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/chenyqthu/mailagent/internal/notion"
	"github.com/rs/zerolog"
)

const (
	threadIDProperty = "Thread ID"
	dateProperty     = "Date"
	parentProperty   = "Parent Item"
	subItemProperty  = "Sub-item"
)

// Manager rewrites thread relations for a newly-synced page.
type Manager struct {
	client     *notion.Client
	databaseID string
	log        zerolog.Logger
}

// New returns a Manager operating against the mail database.
func New(client *notion.Client, databaseID string) *Manager {
	return &Manager{client: client, databaseID: databaseID, log: logging.WithComponent("threadmgr")}
}

// member is one thread participant as seen through the remote page API.
type member struct {
	PageID string
	Date   time.Time
}

// Reconcile recomputes thread relations for threadID after pageID (the
// just-synced page) joined it. A write failure here does not roll back
// the page creation that triggered it — the caller logs and moves on,
// since the next message synced in this thread re-runs the same
// computation from scratch and is self-healing.
func (m *Manager) Reconcile(ctx context.Context, threadID, pageID string, pageDate time.Time) error {
	others, err := m.queryOthers(ctx, threadID, pageID)
	if err != nil {
		return fmt.Errorf("threadmgr: querying thread %s: %w", threadID, err)
	}
	if len(others) == 0 {
		return nil
	}

	latestOther := others[0]
	for _, o := range others[1:] {
		if o.Date.After(latestOther.Date) {
			latestOther = o
		}
	}

	if !pageDate.Before(latestOther.Date) {
		// pageID is the new head.
		if err := m.client.UpdatePage(ctx, pageID, notion.Properties{parentProperty: relationValue(nil)}); err != nil {
			return fmt.Errorf("threadmgr: clearing parent on new head %s: %w", pageID, err)
		}
		subIDs := dedupeExcluding(pageIDs(others), pageID)
		if err := m.client.UpdatePage(ctx, pageID, notion.Properties{subItemProperty: relationValue(subIDs)}); err != nil {
			return fmt.Errorf("threadmgr: setting sub-items on new head %s: %w", pageID, err)
		}
		return nil
	}

	// pageID is not the head: latestOther's sub-items become siblings ∪ {pageID}.
	siblings := make([]string, 0, len(others))
	for _, o := range others {
		if o.PageID != latestOther.PageID {
			siblings = append(siblings, o.PageID)
		}
	}
	siblings = append(siblings, pageID)
	siblings = dedupeExcluding(siblings, latestOther.PageID)

	if err := m.client.UpdatePage(ctx, latestOther.PageID, notion.Properties{subItemProperty: relationValue(siblings)}); err != nil {
		return fmt.Errorf("threadmgr: updating head %s sub-items: %w", latestOther.PageID, err)
	}
	return nil
}

func (m *Manager) queryOthers(ctx context.Context, threadID, excludePageID string) ([]member, error) {
	filter := map[string]any{
		"property": threadIDProperty,
		"rich_text": map[string]any{
			"equals": threadID,
		},
	}
	pages, err := m.client.QueryDatabase(ctx, m.databaseID, filter, nil)
	if err != nil {
		return nil, err
	}

	var out []member
	for _, p := range pages {
		if p.ID == excludePageID {
			continue
		}
		out = append(out, member{PageID: p.ID, Date: extractDate(p, dateProperty)})
	}
	return out, nil
}

func extractDate(p notion.Page, propName string) time.Time {
	raw, ok := p.Properties[propName]
	if !ok {
		return time.Time{}
	}
	t, err := parseDatePropertyJSON(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func pageIDs(members []member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.PageID
	}
	return ids
}

// dedupeExcluding removes duplicate ids and any id equal to self — the
// duplicate-child guard before any Sub-item write.
func dedupeExcluding(ids []string, self string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if id == self || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func relationValue(pageIDs []string) map[string]any {
	relations := make([]map[string]any, len(pageIDs))
	for i, id := range pageIDs {
		relations[i] = map[string]any{"id": id}
	}
	return map[string]any{"relation": relations}
}
