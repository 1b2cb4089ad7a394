package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DigestDraft    = "draft"
	DigestActive   = "active"
	DigestArchived = "archived"
)

type DigestSection struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// CityDigest is the latest content snapshot for a city, written by the
// external content pipeline. Read-only here: the resolver always picks
// the most recent active row per city.
type CityDigest struct {
	gorm.Model
	CityCode string `gorm:"index"`
	Headline string
	Sections datatypes.JSONType[[]DigestSection]
	Date     time.Time
	Status   string `gorm:"index"`
}

type CityDigests []CityDigest
