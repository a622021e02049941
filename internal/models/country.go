package models

import (
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// CountryNumberTypes records which number types the provider offers in a country.
type CountryNumberTypes struct {
	bun.BaseModel `bun:"table:country_number_types,alias:cnt"`

	CountryCode      string    `bun:"country_code,pk,type:varchar(2)" json:"country_code"`
	Country          string    `bun:"country,notnull" json:"country"`
	Beta             bool      `bun:"beta,notnull,default:false" json:"beta"`
	Local            bool      `bun:"local,notnull,default:false" json:"local"`
	TollFree         bool      `bun:"toll_free,notnull,default:false" json:"toll_free"`
	Mobile           bool      `bun:"mobile,notnull,default:false" json:"mobile"`
	National         bool      `bun:"national,notnull,default:false" json:"national"`
	VoIP             bool      `bun:"voip,notnull,default:false" json:"voip"`
	SharedCost       bool      `bun:"shared_cost,notnull,default:false" json:"shared_cost"`
	MachineToMachine bool      `bun:"machine_to_machine,notnull,default:false" json:"machine_to_machine"`
	LastUpdated      time.Time `bun:"last_updated,notnull" json:"last_updated"`
}

// Validate checks the natural key and required columns.
func (c *CountryNumberTypes) Validate() error {
	if len(c.CountryCode) != 2 {
		return errors.New("country code must be two letters")
	}
	if c.CountryCode != strings.ToUpper(c.CountryCode) {
		return errors.New("country code must be upper case")
	}
	if c.Country == "" {
		return errors.New("country name is required")
	}
	return nil
}

// Supports reports whether the given number type is available.
func (c *CountryNumberTypes) Supports(nt NumberType) bool {
	switch nt {
	case NumberLocal:
		return c.Local
	case NumberTollFree:
		return c.TollFree
	case NumberMobile:
		return c.Mobile
	case NumberNational:
		return c.National
	case NumberVoIP:
		return c.VoIP
	case NumberSharedCost:
		return c.SharedCost
	case NumberMachineToMachine:
		return c.MachineToMachine
	}
	return false
}

// SetSupported flips the availability flag of one number type.
func (c *CountryNumberTypes) SetSupported(nt NumberType, ok bool) {
	switch nt {
	case NumberLocal:
		c.Local = ok
	case NumberTollFree:
		c.TollFree = ok
	case NumberMobile:
		c.Mobile = ok
	case NumberNational:
		c.National = ok
	case NumberVoIP:
		c.VoIP = ok
	case NumberSharedCost:
		c.SharedCost = ok
	case NumberMachineToMachine:
		c.MachineToMachine = ok
	}
}

// AvailableTypes returns the supported number types in column order.
func (c *CountryNumberTypes) AvailableTypes() []NumberType {
	out := make([]NumberType, 0, len(NumberTypes))
	for _, nt := range NumberTypes {
		if c.Supports(nt) {
			out = append(out, nt)
		}
	}
	return out
}
