package mailchimp

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/newsr/citydigest/config"
	"go.uber.org/zap"
)

const forgottenEmailTitle = "Forgotten Email Not Subscribed"

// API covers the audience and campaign operations this core depends
// on. Every call is a blocking network round trip with a bounded
// timeout; failures surface as *APIError where the provider responded.
type API interface {
	Ping(ctx context.Context) error

	GetMember(ctx context.Context, email string) (*Member, error)
	AddMember(ctx context.Context, email string, merge MergeFields) (*Member, error)
	UpdateMember(ctx context.Context, email string, merge MergeFields) (*Member, error)
	UpdateMemberTags(ctx context.Context, email string, tags []string) error

	ListSegments(ctx context.Context) ([]Segment, error)
	CreateSegment(ctx context.Context, name string) (*Segment, error)
	AddSegmentMember(ctx context.Context, segmentID int, email string) error
	RemoveSegmentMember(ctx context.Context, segmentID int, email string) error

	CreateCampaign(ctx context.Context, spec CampaignSpec) (string, error)
	SetCampaignContent(ctx context.Context, campaignID, html string) error
	SendCampaign(ctx context.Context, campaignID string) error
}

type Client struct {
	BaseURL    string
	AudienceID string

	apiKey    string
	timeout   time.Duration
	transport http.RoundTripper
	log       *zap.Logger
}

func NewClient(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *Client {
	return &Client{
		BaseURL:    fmt.Sprintf("https://%s.api.mailchimp.com/3.0", cfg.Mailchimp.ServerPrefix),
		AudienceID: cfg.Mailchimp.AudienceID,
		apiKey:     cfg.Mailchimp.APIKey,
		timeout:    time.Duration(cfg.Mailchimp.TimeoutSecs) * time.Second,
		transport:  transport,
		log:        log,
	}
}

// SubscriberHash is the provider's member identity: md5 of the
// lowercased email address.
func SubscriberHash(email string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(strings.ToLower(email))))
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func IsForgottenEmail(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Title == forgottenEmailTitle
}

func (c *Client) Ping(ctx context.Context) error {
	return c.fetch(ctx, "ping", c.builder("/ping"))
}

func (c *Client) GetMember(ctx context.Context, email string) (*Member, error) {
	member := &Member{}
	b := c.builder("/lists/%s/members/%s", c.AudienceID, SubscriberHash(email)).
		ToJSON(member)
	if err := c.fetch(ctx, "get member", b); err != nil {
		return nil, err
	}
	return member, nil
}

func (c *Client) AddMember(ctx context.Context, email string, merge MergeFields) (*Member, error) {
	member := &Member{}
	b := c.builder("/lists/%s/members", c.AudienceID).
		Method(http.MethodPost).
		BodyJSON(&memberUpsert{EmailAddress: email, Status: "subscribed", MergeFields: merge}).
		ToJSON(member)
	if err := c.fetch(ctx, "add member", b); err != nil {
		return nil, err
	}
	return member, nil
}

func (c *Client) UpdateMember(ctx context.Context, email string, merge MergeFields) (*Member, error) {
	member := &Member{}
	b := c.builder("/lists/%s/members/%s", c.AudienceID, SubscriberHash(email)).
		Method(http.MethodPatch).
		BodyJSON(&memberUpsert{EmailAddress: email, MergeFields: merge}).
		ToJSON(member)
	if err := c.fetch(ctx, "update member", b); err != nil {
		return nil, err
	}
	return member, nil
}

func (c *Client) UpdateMemberTags(ctx context.Context, email string, tags []string) error {
	payload := memberTags{Tags: make([]memberTag, 0, len(tags))}
	for _, tag := range tags {
		payload.Tags = append(payload.Tags, memberTag{Name: tag, Status: "active"})
	}

	b := c.builder("/lists/%s/members/%s/tags", c.AudienceID, SubscriberHash(email)).
		Method(http.MethodPost).
		BodyJSON(&payload)
	return c.fetch(ctx, "update member tags", b)
}

func (c *Client) ListSegments(ctx context.Context) ([]Segment, error) {
	list := segmentList{}
	b := c.builder("/lists/%s/segments", c.AudienceID).
		Param("count", "1000").
		ToJSON(&list)
	if err := c.fetch(ctx, "list segments", b); err != nil {
		return nil, err
	}
	return list.Segments, nil
}

func (c *Client) CreateSegment(ctx context.Context, name string) (*Segment, error) {
	segment := &Segment{}
	b := c.builder("/lists/%s/segments", c.AudienceID).
		Method(http.MethodPost).
		BodyJSON(&segmentCreate{Name: name, StaticSegment: []string{}}).
		ToJSON(segment)
	if err := c.fetch(ctx, "create segment", b); err != nil {
		return nil, err
	}
	return segment, nil
}

func (c *Client) AddSegmentMember(ctx context.Context, segmentID int, email string) error {
	b := c.builder("/lists/%s/segments/%d/members", c.AudienceID, segmentID).
		Method(http.MethodPost).
		BodyJSON(&segmentMember{EmailAddress: email})
	return c.fetch(ctx, "add segment member", b)
}

func (c *Client) RemoveSegmentMember(ctx context.Context, segmentID int, email string) error {
	b := c.builder("/lists/%s/segments/%d/members/%s", c.AudienceID, segmentID, SubscriberHash(email)).
		Method(http.MethodDelete)
	return c.fetch(ctx, "remove segment member", b)
}

func (c *Client) CreateCampaign(ctx context.Context, spec CampaignSpec) (string, error) {
	recipients := campaignRecipients{ListID: c.AudienceID}
	if spec.SegmentID != 0 {
		recipients.SegmentOpts = &campaignSegmentOpts{SavedSegmentID: spec.SegmentID}
	} else {
		recipients.SegmentOpts = &campaignSegmentOpts{
			Match: "all",
			Conditions: []segmentCondition{{
				ConditionType: "EmailAddress",
				Op:            "is",
				Field:         "EMAIL",
				Value:         spec.RecipientEmail,
			}},
		}
	}

	created := campaign{}
	b := c.builder("/campaigns").
		Method(http.MethodPost).
		BodyJSON(&campaignCreate{
			Type:       "regular",
			Recipients: recipients,
			Settings: campaignSettings{
				SubjectLine: spec.Subject,
				PreviewText: spec.PreviewText,
				Title:       spec.Title,
				FromName:    spec.FromName,
				ReplyTo:     spec.ReplyTo,
			},
		}).
		ToJSON(&created)
	if err := c.fetch(ctx, "create campaign", b); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) SetCampaignContent(ctx context.Context, campaignID, html string) error {
	b := c.builder("/campaigns/%s/content", campaignID).
		Method(http.MethodPut).
		BodyJSON(&campaignContent{HTML: html})
	return c.fetch(ctx, "set campaign content", b)
}

func (c *Client) SendCampaign(ctx context.Context, campaignID string) error {
	b := c.builder("/campaigns/%s/actions/send", campaignID).
		Method(http.MethodPost)
	return c.fetch(ctx, "send campaign", b)
}

func (c *Client) builder(pathFormat string, args ...any) *requests.Builder {
	return requests.
		URL(c.BaseURL + fmt.Sprintf(pathFormat, args...)).
		BasicAuth("anystring", c.apiKey).
		Transport(c.transport)
}

func (c *Client) fetch(ctx context.Context, op string, b *requests.Builder) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	apiErr := &APIError{}
	err := b.ErrorJSON(apiErr).Fetch(ctx)
	if err == nil {
		return nil
	}

	if apiErr.StatusCode == 0 && requests.HasStatusErr(err, http.StatusNotFound) {
		apiErr.StatusCode = http.StatusNotFound
	}
	if apiErr.StatusCode != 0 {
		apiErr.op = op
		return apiErr
	}
	return fmt.Errorf("mailchimp: %s: %w", op, err)
}
