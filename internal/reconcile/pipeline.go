package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chenyqthu/mailagent/internal/arm"
	"github.com/chenyqthu/mailagent/internal/htmlblock"
	"github.com/chenyqthu/mailagent/internal/ical"
	"github.com/chenyqthu/mailagent/internal/mimeparse"
	"github.com/chenyqthu/mailagent/internal/notion"
	"github.com/chenyqthu/mailagent/internal/store"
	"github.com/rs/zerolog"
)

// processMessage runs the single-message pipeline: fetch the full content,
// persist what Arm learned, detect and mirror any meeting invite, apply
// the date-window filter, upload attachments, build the page body, create
// or adopt the remote page, mark the message synced, and finally
// best-effort reconcile its thread relations.
//
// Failures at each step are routed to the matching SyncStore transition —
// MarkFetchFailed, MarkSkipped, MarkFailed, or an outright Delete for a
// message Arm reports no longer exists — rather than returned to the
// caller, since the Reconciler's batch loops process many messages per
// tick and one failure must not stop the rest.
func (rc *Reconciler) processMessage(ctx context.Context, internalID int64, mailbox string) {
	log := rc.log.With().Int64("internal_id", internalID).Str("mailbox", mailbox).Logger()

	fetched, err := rc.arm.FetchByID(ctx, internalID, mailbox)
	if err != nil {
		if errors.Is(err, arm.ErrNotFound) {
			log.Info().Msg("message no longer present in mail store, deleting")
			if delErr := rc.store.Delete(internalID); delErr != nil {
				log.Error().Err(delErr).Msg("failed to delete absent message")
			}
			return
		}
		if markErr := rc.store.MarkFetchFailed(internalID, err); markErr != nil {
			log.Error().Err(markErr).Msg("failed to record fetch failure")
		}
		return
	}

	senderName, senderEmail := splitAddress(fetched.Sender)
	if err := rc.store.UpdateAfterFetch(internalID, store.FetchMeta{
		MessageID:  fetched.MessageID,
		ThreadID:   fetched.ThreadID,
		Subject:    fetched.Subject,
		Sender:     senderEmail,
		SenderName: senderName,
		ToAddr:     fetched.ToAddr,
		CcAddr:     fetched.CcAddr,
	}); err != nil {
		log.Error().Err(err).Msg("failed to persist fetched metadata")
	}

	parsed := mimeparse.Parse([]byte(fetched.Source))

	calendarPageIDs, invites := rc.upsertCalendarEvents(ctx, parsed, log)

	if !rc.cfg.SyncStartDate.IsZero() && fetched.DateReceived.Before(rc.cfg.SyncStartDate) {
		if err := rc.store.MarkSkipped(internalID); err != nil {
			log.Error().Err(err).Msg("failed to mark message skipped")
		}
		return
	}

	inlineMap, fileBlocks, err := rc.uploadAttachments(ctx, parsed.Attachments)
	if err != nil {
		if markErr := rc.store.MarkFailed(internalID, err); markErr != nil {
			log.Error().Err(markErr).Msg("failed to record attachment upload failure")
		}
		return
	}

	var originalEML *notion.Upload
	if upload, err := rc.notion.UploadFile(ctx, "original.eml", "message/rfc822", []byte(fetched.Source)); err != nil {
		log.Warn().Err(err).Msg("failed to upload original message source, continuing without it")
	} else {
		originalEML = upload
	}

	if loc, err := time.LoadLocation(rc.cfg.DisplayTimezone); err == nil {
		fetched.DateReceived = fetched.DateReceived.In(loc)
	}

	blocks := buildPageBlocks(parsed, inlineMap, fileBlocks, invites)
	props := buildProperties(fetched, mailbox, len(parsed.Attachments) > 0, calendarPageIDs, originalEML)

	existing, err := rc.notion.FindPageByMessageID(ctx, rc.cfg.NotionDatabaseID, messageIDPropertyName, fetched.MessageID)
	if err != nil {
		if markErr := rc.store.MarkFailed(internalID, err); markErr != nil {
			log.Error().Err(markErr).Msg("failed to record duplicate-check failure")
		}
		return
	}

	var pageID string
	if existing != nil {
		// Integrity case: another sync pass (or a previous attempt that
		// failed after create but before mark_synced) already created a
		// page for this Message ID. Adopt it rather than creating a
		// second page or treating this as an error.
		pageID = existing.ID
		log.Debug().Str("notion_page_id", pageID).Msg("adopting existing page for duplicate message id")
	} else {
		pageID, err = rc.notion.CreatePage(ctx, rc.cfg.NotionDatabaseID, props, blocks, nil)
		if err != nil {
			if markErr := rc.store.MarkFailed(internalID, err); markErr != nil {
				log.Error().Err(markErr).Msg("failed to record create-page failure")
			}
			return
		}
	}

	if err := rc.store.MarkSynced(internalID, pageID); err != nil {
		log.Error().Err(err).Msg("failed to mark message synced")
	}

	if fetched.ThreadID != "" {
		if err := rc.threads.Reconcile(ctx, fetched.ThreadID, pageID, fetched.DateReceived); err != nil {
			log.Warn().Err(err).Msg("thread reconcile failed; will self-heal on next sync of this thread")
		}
	}
}

// upsertCalendarEvents parses and mirrors every text/calendar part found
// in the message. Calendar mirroring is optional (rc.calendar is nil when
// no calendar database was configured) and a failure to parse or upsert
// one invite does not fail the message — the mail side of the sync still
// proceeds without that invite's callout and relation.
func (rc *Reconciler) upsertCalendarEvents(ctx context.Context, parsed *mimeparse.ParsedMessage, log zerolog.Logger) ([]string, []*ical.Invite) {
	if rc.calendar == nil || len(parsed.Calendar) == 0 {
		return nil, nil
	}

	var pageIDs []string
	var invites []*ical.Invite

	for _, cal := range parsed.Calendar {
		invite, err := ical.Parse(cal.Content)
		if err != nil {
			log.Warn().Err(err).Msg("failed to parse calendar part, skipping")
			continue
		}
		if invite == nil {
			continue
		}

		pageID, err := rc.calendar.Upsert(ctx, invite)
		if err != nil {
			log.Warn().Err(err).Str("event_uid", invite.UID).Msg("failed to upsert calendar event, skipping")
			continue
		}

		pageIDs = append(pageIDs, pageID)
		invites = append(invites, invite)
	}

	return pageIDs, invites
}

func buildPageBlocks(parsed *mimeparse.ParsedMessage, inlineMap map[string]htmlblock.InlineImage, fileBlocks []notion.Block, invites []*ical.Invite) []notion.Block {
	var blocks []notion.Block

	for _, invite := range invites {
		blocks = append(blocks, meetingCalloutBlock(invite))
	}

	switch {
	case parsed.BodyHTML != "":
		blocks = append(blocks, convertBlocks(htmlblock.Convert(parsed.BodyHTML, inlineMap))...)
	case parsed.BodyText != "":
		blocks = append(blocks, plainTextBlock(parsed.BodyText))
	}

	blocks = append(blocks, fileBlocks...)
	return blocks
}

// uploadAttachments uploads every extracted attachment sequentially — no
// parallel sends, since the remote API is rate-limit sensitive and a
// batch of simultaneous uploads for one message is not worth the
// complexity. Inline attachments (referenced by cid: or bare filename
// from the HTML body) are added to inlineMap instead of the returned file
// block list, since they're rendered inline by htmlblock.Convert instead
// of as trailing file blocks.
func (rc *Reconciler) uploadAttachments(ctx context.Context, attachments []mimeparse.Attachment) (map[string]htmlblock.InlineImage, []notion.Block, error) {
	inlineMap := make(map[string]htmlblock.InlineImage)
	var fileBlocks []notion.Block

	for _, att := range attachments {
		if len(att.Content) > notion.MaxUploadSize {
			rc.log.Warn().Str("filename", att.Filename).Int("size", len(att.Content)).Msg("skipping oversized attachment")
			continue
		}

		upload, err := rc.notion.UploadFile(ctx, att.Filename, att.ContentType, att.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("uploading attachment %s: %w", att.Filename, err)
		}

		if att.IsInline {
			ref := htmlblock.InlineImage{FileUploadID: upload.ID, ContentType: att.ContentType}
			if att.ContentID != "" {
				inlineMap[att.ContentID] = ref
			}
			inlineMap[att.Filename] = ref
			continue
		}

		fileBlocks = append(fileBlocks, fileBlock(att.Filename, upload.ID))
	}

	return inlineMap, fileBlocks, nil
}
