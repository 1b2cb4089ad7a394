package mailchimp

import (
	"fmt"
	"strings"
)

type MergeFields struct {
	FirstName string `json:"FNAME,omitempty"`
	LastName  string `json:"LNAME,omitempty"`
}

type Member struct {
	ID           string      `json:"id"`
	EmailAddress string      `json:"email_address"`
	Status       string      `json:"status"`
	MergeFields  MergeFields `json:"merge_fields"`
}

type Segment struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// CampaignSpec targets either a saved segment (SegmentID != 0) or a
// single recipient by exact email match.
type CampaignSpec struct {
	SegmentID      int
	RecipientEmail string
	Subject        string
	Title          string
	FromName       string
	ReplyTo        string
	PreviewText    string
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is the provider's problem-detail body, surfaced so callers
// can log status, title and field-level errors for diagnosis.
type APIError struct {
	StatusCode int          `json:"status"`
	Title      string       `json:"title"`
	Detail     string       `json:"detail"`
	Errors     []FieldError `json:"errors"`

	op string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mailchimp: %s: %d %s", e.op, e.StatusCode, e.Title)
	if e.Detail != "" {
		fmt.Fprintf(&b, " - %s", e.Detail)
	}
	for _, fe := range e.Errors {
		fmt.Fprintf(&b, "; %s: %s", fe.Field, fe.Message)
	}
	return b.String()
}

// Wire payloads.

type memberUpsert struct {
	EmailAddress string      `json:"email_address"`
	Status       string      `json:"status,omitempty"`
	MergeFields  MergeFields `json:"merge_fields"`
}

type memberTags struct {
	Tags []memberTag `json:"tags"`
}

type memberTag struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type segmentList struct {
	Segments []Segment `json:"segments"`
}

type segmentCreate struct {
	Name          string   `json:"name"`
	StaticSegment []string `json:"static_segment"`
}

type segmentMember struct {
	EmailAddress string `json:"email_address"`
}

type campaignCreate struct {
	Type       string             `json:"type"`
	Recipients campaignRecipients `json:"recipients"`
	Settings   campaignSettings   `json:"settings"`
}

type campaignRecipients struct {
	ListID      string               `json:"list_id"`
	SegmentOpts *campaignSegmentOpts `json:"segment_opts,omitempty"`
}

type campaignSegmentOpts struct {
	SavedSegmentID int                `json:"saved_segment_id,omitempty"`
	Match          string             `json:"match,omitempty"`
	Conditions     []segmentCondition `json:"conditions,omitempty"`
}

type segmentCondition struct {
	ConditionType string `json:"condition_type"`
	Op            string `json:"op"`
	Field         string `json:"field"`
	Value         string `json:"value"`
}

type campaignSettings struct {
	SubjectLine string `json:"subject_line"`
	PreviewText string `json:"preview_text,omitempty"`
	Title       string `json:"title"`
	FromName    string `json:"from_name"`
	ReplyTo     string `json:"reply_to"`
}

type campaign struct {
	ID string `json:"id"`
}

type campaignContent struct {
	HTML string `json:"html"`
}
