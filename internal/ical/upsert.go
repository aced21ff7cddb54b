package ical

import (
	"context"
	"fmt"
	"time"

	"github.com/chenyqthu/mailagent/internal/notion"
)

// Upserter creates or updates a calendar page in the configured calendar
// database, keyed by the event's UID — the same upsert-by-identifier
// pattern the mail side uses for Message ID, applied to VEVENT UID
// instead.
type Upserter struct {
	client     *notion.Client
	databaseID string
}

// NewUpserter returns an Upserter writing into databaseID.
func NewUpserter(client *notion.Client, databaseID string) *Upserter {
	return &Upserter{client: client, databaseID: databaseID}
}

// Upsert finds an existing page by UID and updates it, or creates a new
// one. It returns the page id either way, which the caller (the
// Reconciler's meeting-detection step) links from the Message's
// Calendar Events relation.
func (u *Upserter) Upsert(ctx context.Context, invite *Invite) (string, error) {
	existing, err := u.client.QueryDatabase(ctx, u.databaseID, map[string]any{
		"property": "Event ID",
		"rich_text": map[string]any{
			"equals": invite.UID,
		},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("ical: querying existing event %s: %w", invite.UID, err)
	}

	properties := buildProperties(invite)

	if len(existing) > 0 {
		pageID := existing[0].ID
		if err := u.client.UpdatePage(ctx, pageID, properties); err != nil {
			return "", fmt.Errorf("ical: updating event %s: %w", invite.UID, err)
		}
		return pageID, nil
	}

	pageID, err := u.client.CreatePage(ctx, u.databaseID, properties, nil, nil)
	if err != nil {
		return "", fmt.Errorf("ical: creating event %s: %w", invite.UID, err)
	}
	return pageID, nil
}

func buildProperties(invite *Invite) notion.Properties {
	props := notion.Properties{
		"Name":     richTitle(invite.Summary),
		"Event ID": richText(invite.UID),
		"Status":   selectOption(string(invite.Status)),
		"Start":    dateProperty(invite.Start),
		"End":      dateProperty(invite.End),
		"All Day":  invite.IsAllDay,
	}
	if invite.Location != "" {
		props["Location"] = richText(invite.Location)
	}
	if invite.Description != "" {
		props["Description"] = richText(invite.Description)
	}
	if invite.OrganizerEmail != "" {
		props["Organizer"] = richText(invite.OrganizerEmail)
	}
	if invite.TeamsURL != "" {
		props["Meeting Link"] = map[string]any{"url": invite.TeamsURL}
	}
	return props
}

func richTitle(text string) map[string]any {
	return map[string]any{"title": []map[string]any{{"text": map[string]any{"content": text}}}}
}

func richText(text string) map[string]any {
	return map[string]any{"rich_text": []map[string]any{{"text": map[string]any{"content": text}}}}
}

func selectOption(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}

func dateProperty(t time.Time) map[string]any {
	return map[string]any{"date": map[string]any{"start": t.Format(time.RFC3339)}}
}
