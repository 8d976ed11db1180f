// Package parties manages the counter-party master records orders are placed against.
package parties

import (
	"errors"
	"time"
)

// ErrPartyNotFound indicates missing party.
var ErrPartyNotFound = errors.New("party not found")

// Status marks whether a party may receive new orders.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// Party is the live master record.
type Party struct {
	ID                  int64     `json:"id"`
	CompanyName         string    `json:"company_name"`
	ContactPersonNumber string    `json:"contact_person_number"`
	Address             string    `json:"address"`
	Limit               int64     `json:"limit"`
	Status              Status    `json:"status"`
	CreatedBy           int64     `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Snapshot is the copy embedded in an order at placement time.
type Snapshot struct {
	PartyID             int64  `json:"party_id"`
	CompanyName         string `json:"company_name"`
	ContactPersonNumber string `json:"contact_person_number"`
	Address             string `json:"address"`
}

// Snapshot copies the fields an order keeps regardless of later edits.
func (p Party) Snapshot() Snapshot {
	return Snapshot{
		PartyID:             p.ID,
		CompanyName:         p.CompanyName,
		ContactPersonNumber: p.ContactPersonNumber,
		Address:             p.Address,
	}
}

// CreateInput carries a new party.
type CreateInput struct {
	CompanyName         string `json:"company_name" validate:"required,max=200"`
	ContactPersonNumber string `json:"contact_person_number" validate:"required,max=20"`
	Address             string `json:"address" validate:"max=500"`
	Limit               int64  `json:"limit" validate:"gte=0"`
}

// UpdateInput carries editable fields; nil leaves the field unchanged.
type UpdateInput struct {
	CompanyName         *string `json:"company_name" validate:"omitempty,max=200"`
	ContactPersonNumber *string `json:"contact_person_number" validate:"omitempty,max=20"`
	Address             *string `json:"address" validate:"omitempty,max=500"`
	Limit               *int64  `json:"limit" validate:"omitempty,gte=0"`
	Status              *Status `json:"status"`
}
