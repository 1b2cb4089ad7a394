package lib

import (
	"context"
	"fmt"

	"github.com/newsr/citydigest/mailchimp"
	"go.uber.org/zap"
)

// audienceSync reconciles subscription state into the mailing-list
// provider's contacts and named segments. Everything here is
// best-effort: failures are logged and reported as a boolean outcome,
// never raised into the subscription store's transaction. The store
// stays authoritative even when the audience lags.
type audienceSync struct {
	log *zap.Logger
	api mailchimp.API
}

// SegmentName is the single naming scheme for city segments. Both the
// add and remove paths resolve through it, so membership for one
// (city, frequency) tuple always lands in the same segment.
func SegmentName(cityName, frequency string) string {
	return fmt.Sprintf("%s %s digest", cityName, frequency)
}

// EnsureContact upserts a contact: create subscribed if absent, update
// name fields if present, then apply tags. A contact that previously
// unsubscribed cannot be re-added automatically; that comes back from
// the provider as a distinct error and is surfaced here as a false
// outcome, not retried.
func (a *audienceSync) EnsureContact(ctx context.Context, email, firstName, lastName string, tags []string) bool {
	merge := mailchimp.MergeFields{FirstName: firstName, LastName: lastName}

	_, err := a.api.GetMember(ctx, email)
	switch {
	case err == nil:
		if _, err := a.api.UpdateMember(ctx, email, merge); err != nil {
			a.log.Sugar().Errorw("Failed to update contact", "email", email, "err", err)
			return false
		}

	case mailchimp.IsNotFound(err):
		if _, err := a.api.AddMember(ctx, email, merge); err != nil {
			if mailchimp.IsForgottenEmail(err) {
				a.log.Sugar().Warnf("Contact %s was previously unsubscribed and cannot be re-added automatically", email)
			} else {
				a.log.Sugar().Errorw("Failed to add contact", "email", email, "err", err)
			}
			return false
		}

	default:
		a.log.Sugar().Errorw("Failed to look up contact", "email", email, "err", err)
		return false
	}

	if len(tags) > 0 {
		if err := a.api.UpdateMemberTags(ctx, email, tags); err != nil {
			a.log.Sugar().Errorw("Failed to update contact tags", "email", email, "err", err)
			return false
		}
	}
	return true
}

func (a *audienceSync) AddToSegment(ctx context.Context, email, cityName, frequency string) bool {
	name := SegmentName(cityName, frequency)

	segment, err := a.findOrCreateSegment(ctx, name)
	if err != nil {
		a.log.Sugar().Errorw("Failed to resolve segment", "segment", name, "err", err)
		return false
	}

	if err := a.api.AddSegmentMember(ctx, segment.ID, email); err != nil {
		a.log.Sugar().Errorw("Failed to add to segment", "segment", name, "email", email, "err", err)
		return false
	}
	return true
}

// RemoveFromSegment must always be able to make forward progress: it
// does not require that the contact's upsert ever succeeded, and a
// missing segment means there is nothing to remove from.
func (a *audienceSync) RemoveFromSegment(ctx context.Context, email, cityName, frequency string) bool {
	name := SegmentName(cityName, frequency)

	segment, err := a.FindSegment(ctx, name)
	if err != nil {
		a.log.Sugar().Errorw("Failed to resolve segment", "segment", name, "err", err)
		return false
	}
	if segment == nil {
		return true
	}

	if err := a.api.RemoveSegmentMember(ctx, segment.ID, email); err != nil {
		a.log.Sugar().Errorw("Failed to remove from segment", "segment", name, "email", email, "err", err)
		return false
	}
	return true
}

// FindSegment resolves a segment by name; nil without error when the
// segment does not exist.
func (a *audienceSync) FindSegment(ctx context.Context, name string) (*mailchimp.Segment, error) {
	segments, err := a.api.ListSegments(ctx)
	if err != nil {
		return nil, &UpstreamError{Op: "list segments", Err: err}
	}
	for _, segment := range segments {
		if segment.Name == name {
			return &segment, nil
		}
	}
	return nil, nil
}

// findOrCreateSegment resolves by name before creating, so repeated
// calls stay idempotent. Two truly concurrent first-subscribes could
// still race into duplicate names; resolve-by-name keeps later calls
// converging on whichever the provider lists first.
func (a *audienceSync) findOrCreateSegment(ctx context.Context, name string) (*mailchimp.Segment, error) {
	segment, err := a.FindSegment(ctx, name)
	if err != nil {
		return nil, err
	}
	if segment != nil {
		return segment, nil
	}

	created, err := a.api.CreateSegment(ctx, name)
	if err != nil {
		return nil, &UpstreamError{Op: "create segment", Err: err}
	}
	return created, nil
}
