// Package reverse implements reverse sync: an independent poller that
// looks for remote pages an AI review step has finished with and pushes
// the resulting read/flag decision back into Mail.app via Arm. It shares
// nothing with the forward Reconciler's retry queue — a page that fails
// here is simply retried on the next tick.
package reverse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chenyqthu/mailagent/internal/arm"
	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/chenyqthu/mailagent/internal/notion"
	"github.com/chenyqthu/mailagent/internal/store"
	"github.com/rs/zerolog"
)

const (
	reviewStatusProperty = "AI Review Status"
	actionProperty       = "AI Action"
	syncedProperty       = "Synced to Mail"
	syncTimeProperty     = "Mail Sync Time"
	messageIDProperty    = "Message ID"
	reviewedStatus       = "Reviewed"
)

// Action is one of the four AI Action select values the remote schema
// allows. Archive is a documented degenerate case: this daemon has no
// concept of archiving independent of Mail.app's own mailbox structure,
// so it maps to the same mark_read call as Mark Read.
type Action string

const (
	ActionMarkRead        Action = "Mark Read"
	ActionFlagImportant   Action = "Flag Important"
	ActionMarkReadAndFlag Action = "Mark Read and Flag"
	ActionArchive         Action = "Archive"
)

// Poller drives the reverse-sync loop.
type Poller struct {
	client     *notion.Client
	store      *store.Store
	arm        *arm.Arm
	databaseID string
	interval   time.Duration
	log        zerolog.Logger
}

// New returns a Poller querying databaseID at the given interval.
func New(client *notion.Client, st *store.Store, a *arm.Arm, databaseID string, interval time.Duration) *Poller {
	return &Poller{
		client:     client,
		store:      st,
		arm:        a,
		databaseID: databaseID,
		interval:   interval,
		log:        logging.WithComponent("reverse"),
	}
}

// Run drives the poll loop until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("reverse sync loop stopping")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick queries for reviewed-but-unsynced pages and dispatches each to Arm.
func (p *Poller) Tick(ctx context.Context) {
	pages, err := p.client.QueryDatabase(ctx, p.databaseID, reviewedUnsyncedFilter(), nil)
	if err != nil {
		p.log.Error().Err(err).Msg("querying reviewed pages failed")
		return
	}

	for _, page := range pages {
		if ctx.Err() != nil {
			return
		}
		p.applyPage(ctx, page)
	}
}

func reviewedUnsyncedFilter() map[string]any {
	return map[string]any{
		"and": []map[string]any{
			{"property": reviewStatusProperty, "select": map[string]any{"equals": reviewedStatus}},
			{"property": syncedProperty, "checkbox": map[string]any{"equals": false}},
		},
	}
}

func (p *Poller) applyPage(ctx context.Context, page notion.Page) {
	log := p.log.With().Str("notion_page_id", page.ID).Logger()

	messageID, err := richTextPropertyValue(page, messageIDProperty)
	if err != nil || messageID == "" {
		log.Warn().Err(err).Msg("page has no usable Message ID, skipping")
		return
	}

	action, err := selectPropertyName(page, actionProperty)
	if err != nil {
		log.Warn().Err(err).Msg("page has no AI Action set, skipping")
		return
	}

	msg, err := p.store.GetByMessageID(messageID)
	if err != nil {
		log.Warn().Err(err).Str("message_id", messageID).Msg("could not resolve local message, skipping")
		return
	}

	if err := p.dispatch(ctx, Action(action), msg); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("dispatching reverse-sync action to Arm failed, will retry next tick")
		return
	}

	if err := p.client.UpdatePage(ctx, page.ID, notion.Properties{
		syncedProperty:   map[string]any{"checkbox": true},
		syncTimeProperty: map[string]any{"date": map[string]any{"start": time.Now().UTC().Format(time.RFC3339)}},
	}); err != nil {
		log.Error().Err(err).Msg("action applied locally but failed to mark page synced; will be re-applied next tick")
	}
}

// dispatch maps an AI Action onto the corresponding Arm calls.
func (p *Poller) dispatch(ctx context.Context, action Action, msg store.Message) error {
	messageID := msg.MessageID.String
	mailbox := msg.Mailbox

	switch action {
	case ActionMarkRead, ActionArchive:
		return p.arm.MarkRead(ctx, messageID, true, mailbox)
	case ActionFlagImportant:
		return p.arm.SetFlag(ctx, messageID, true, mailbox)
	case ActionMarkReadAndFlag:
		if err := p.arm.MarkRead(ctx, messageID, true, mailbox); err != nil {
			return err
		}
		return p.arm.SetFlag(ctx, messageID, true, mailbox)
	default:
		return fmt.Errorf("reverse: unrecognized AI Action %q", action)
	}
}

type selectPropertyJSON struct {
	Select *struct {
		Name string `json:"name"`
	} `json:"select"`
}

func selectPropertyName(page notion.Page, propName string) (string, error) {
	raw, ok := page.Properties[propName]
	if !ok {
		return "", fmt.Errorf("property %q not present", propName)
	}
	var parsed selectPropertyJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding select property %q: %w", propName, err)
	}
	if parsed.Select == nil {
		return "", fmt.Errorf("property %q has no select value", propName)
	}
	return parsed.Select.Name, nil
}

type richTextPropertyJSON struct {
	RichText []struct {
		PlainText string `json:"plain_text"`
	} `json:"rich_text"`
}

func richTextPropertyValue(page notion.Page, propName string) (string, error) {
	raw, ok := page.Properties[propName]
	if !ok {
		return "", fmt.Errorf("property %q not present", propName)
	}
	var parsed richTextPropertyJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding rich_text property %q: %w", propName, err)
	}
	var out string
	for _, t := range parsed.RichText {
		out += t.PlainText
	}
	return out, nil
}
