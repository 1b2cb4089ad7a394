package models

import "gorm.io/gorm"

// City is the locality registry. Rows are seeded out of band; a digest
// subscription is only valid for a city code present here.
type City struct {
	gorm.Model
	Code string `gorm:"unique"`
	Name string
}

type Cities []City
