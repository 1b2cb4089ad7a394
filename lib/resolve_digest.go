package lib

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/newsr/citydigest/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	//go:embed digest.html
	digestHTML     string
	digestTemplate = template.Must(template.New("digest.html").Parse(digestHTML))
)

type digestResolver struct {
	log *zap.Logger
	db  *gorm.DB
}

// RecipientContext carries the recipient-specific touches substituted
// into a rendered digest. Zero value renders the generic batch copy.
type RecipientContext struct {
	FirstName string
}

// Document is a delivery-ready rendering of one digest.
type Document struct {
	Subject     string
	HTML        string
	PreviewText string
}

// LatestActiveDigest picks the most recent active digest for the city.
// A NotFoundError here is the scheduler's skip signal, not a crash.
func (r *digestResolver) LatestActiveDigest(ctx context.Context, cityCode string) (*models.CityDigest, error) {
	digest := &models.CityDigest{}
	tx := r.db.WithContext(ctx).
		Where("city_code = ? AND status = ?", cityCode, models.DigestActive).
		Order("date desc, id desc").
		First(digest)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "active digest", Key: cityCode}
	} else if tx.Error != nil {
		return nil, tx.Error
	}
	return digest, nil
}

type digestTemplateData struct {
	CityName  string
	FirstName string
	Headline  string
	DateLong  string
	Sections  []models.DigestSection
}

// Render produces the subject line and body for a digest. Pure
// function, no I/O.
func (r *digestResolver) Render(digest *models.CityDigest, cityName, frequency string, rcpt RecipientContext) (*Document, error) {
	firstName := rcpt.FirstName
	if firstName == "" {
		firstName = "there"
	}

	subject := digest.Headline
	if subject == "" {
		subject = fmt.Sprintf("%s %s Digest", cityName, titleCase(frequency))
	}

	data := digestTemplateData{
		CityName:  cityName,
		FirstName: firstName,
		Headline:  subject,
		DateLong:  digest.Date.Format("Monday, January 2, 2006"),
		Sections:  digest.Sections.Data(),
	}

	buf := new(strings.Builder)
	if err := digestTemplate.Execute(buf, data); err != nil {
		return nil, err
	}

	html := buf.String()
	return &Document{
		Subject:     subject,
		HTML:        html,
		PreviewText: previewText(html, previewTextLimit),
	}, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
