package models

import (
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Regulation is one regulatory compliance bundle definition for a country and number type.
type Regulation struct {
	bun.BaseModel `bun:"table:regulations,alias:r"`

	SID          string    `bun:"sid,pk,type:varchar(34)" json:"sid"`
	FriendlyName *string   `bun:"friendly_name" json:"friendly_name,omitempty"`
	IsoCountry   string    `bun:"iso_country,nullzero,type:varchar(2)" json:"iso_country"`
	NumberType   string    `bun:"number_type,nullzero" json:"number_type"`
	EndUserType  string    `bun:"end_user_type,notnull,default:'business'" json:"end_user_type"`
	Requirements JSONMap   `bun:"requirements,type:json" json:"requirements,omitempty"`
	URL          *string   `bun:"url" json:"url,omitempty"`
	LastUpdated  time.Time `bun:"last_updated,notnull" json:"last_updated"`
}

// Validate checks the natural key.
func (r *Regulation) Validate() error {
	if r.SID == "" {
		return errors.New("regulation sid is required")
	}
	if r.EndUserType == "" {
		return errors.New("end user type is required")
	}
	return nil
}
