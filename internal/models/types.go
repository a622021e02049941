package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JobType selects the target collection and storage table of a sync run.
type JobType string

const (
	JobTypeNumberTypes JobType = "number-types"
	JobTypeRegulations JobType = "regulations"
)

// JobTypes lists every recognized job type.
var JobTypes = []JobType{JobTypeNumberTypes, JobTypeRegulations}

// Valid reports whether t is a recognized job type.
func (t JobType) Valid() bool {
	for _, jt := range JobTypes {
		if t == jt {
			return true
		}
	}
	return false
}

// ParseJobType converts a wire value into a JobType.
func ParseJobType(s string) (JobType, error) {
	t := JobType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown job type %q", s)
	}
	return t, nil
}

// JobStatus is the externally visible state of a sync job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NumberType is a phone-number category offered per country.
type NumberType string

const (
	NumberLocal            NumberType = "local"
	NumberTollFree         NumberType = "toll_free"
	NumberMobile           NumberType = "mobile"
	NumberNational         NumberType = "national"
	NumberVoIP             NumberType = "voip"
	NumberSharedCost       NumberType = "shared_cost"
	NumberMachineToMachine NumberType = "machine_to_machine"
)

// NumberTypes lists the number types tracked per country, in column order.
var NumberTypes = []NumberType{
	NumberLocal,
	NumberTollFree,
	NumberMobile,
	NumberNational,
	NumberVoIP,
	NumberSharedCost,
	NumberMachineToMachine,
}

// ParseNumberType validates a number type filter value.
func ParseNumberType(s string) (NumberType, error) {
	nt := NumberType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range NumberTypes {
		if nt == known {
			return nt, nil
		}
	}
	return "", fmt.Errorf("invalid number type %q", s)
}

// EndUserBusiness is the only end-user type regulations are synced for.
const EndUserBusiness = "business"

// JSONMap stores a free-form JSON object in SQLite.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("failed to scan JSONMap")
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}
