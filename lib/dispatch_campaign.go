package lib

import (
	"context"
	"errors"

	"github.com/newsr/citydigest/config"
	"github.com/newsr/citydigest/mailchimp"
	"go.uber.org/zap"
)

// campaignDispatcher drives one send attempt through the provider's
// strict ordering: create the campaign, attach content, trigger
// delivery. A campaign that fails after creation is abandoned, not
// retried; retrying a partially-sent campaign risks duplicates.
type campaignDispatcher struct {
	cfg      *config.Config
	log      *zap.Logger
	api      mailchimp.API
	audience *audienceSync
}

// Contact identifies a single deliverable recipient.
type Contact struct {
	Email     string
	FirstName string
	LastName  string
}

// SendToSegment targets a saved segment for a batch send. The caller
// has already verified the segment has subscribers; re-checking here
// would race against the send.
func (d *campaignDispatcher) SendToSegment(ctx context.Context, segmentID int, doc *Document, title string) (string, error) {
	return d.dispatch(ctx, mailchimp.CampaignSpec{
		SegmentID:   segmentID,
		Subject:     doc.Subject,
		Title:       title,
		FromName:    d.cfg.Mailchimp.FromName,
		ReplyTo:     d.cfg.Mailchimp.ReplyTo,
		PreviewText: doc.PreviewText,
	}, doc)
}

// SendToSingleRecipient targets exactly one contact by exact-match
// condition; used for test sends and single-user resends. The contact
// is upserted first so the recipient is guaranteed deliverable.
func (d *campaignDispatcher) SendToSingleRecipient(ctx context.Context, contact Contact, doc *Document, title string) (string, error) {
	if ok := d.audience.EnsureContact(ctx, contact.Email, contact.FirstName, contact.LastName, nil); !ok {
		return "", &UpstreamError{Op: "ensure contact " + contact.Email, Err: errors.New("contact could not be added or updated")}
	}

	return d.dispatch(ctx, mailchimp.CampaignSpec{
		RecipientEmail: contact.Email,
		Subject:        doc.Subject,
		Title:          title,
		FromName:       d.cfg.Mailchimp.FromName,
		ReplyTo:        d.cfg.Mailchimp.ReplyTo,
		PreviewText:    doc.PreviewText,
	}, doc)
}

func (d *campaignDispatcher) dispatch(ctx context.Context, spec mailchimp.CampaignSpec, doc *Document) (string, error) {
	campaignID, err := d.api.CreateCampaign(ctx, spec)
	if err != nil {
		return "", &UpstreamError{Op: "create campaign", Err: err}
	}

	if err := d.api.SetCampaignContent(ctx, campaignID, doc.HTML); err != nil {
		// The created-but-unsent campaign is abandoned.
		return "", &UpstreamError{Op: "set content for campaign " + campaignID, Err: err}
	}

	if err := d.api.SendCampaign(ctx, campaignID); err != nil {
		return "", &UpstreamError{Op: "send campaign " + campaignID, Err: err}
	}

	d.log.Sugar().Infow("Campaign sent", "campaign_id", campaignID, "title", spec.Title)
	return campaignID, nil
}
