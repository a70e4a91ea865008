package models

import (
	"time"
)

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "ACTIVE"
	MembershipInactive MembershipStatus = "INACTIVE"
)

// Valid reports whether s is a known membership status
func (s MembershipStatus) Valid() bool {
	return s == MembershipActive || s == MembershipInactive
}

// Member represents a registered library member
type Member struct {
	ID               int64            `json:"memberId" db:"id"`
	Name             string           `json:"name" db:"name"`
	Email            string           `json:"email" db:"email"`
	Phone            string           `json:"phone,omitempty" db:"phone"`
	Address          string           `json:"address,omitempty" db:"address"`
	MembershipStatus MembershipStatus `json:"membershipStatus" db:"membership_status"`
	CreatedAt        time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time        `json:"updatedAt" db:"updated_at"`
}

// MemberRequest is the create/update payload for a member
type MemberRequest struct {
	Name             string           `json:"name" validate:"required,max=120"`
	Email            string           `json:"email" validate:"required,email,max=254"`
	Phone            string           `json:"phone,omitempty" validate:"omitempty,len=10,number"`
	Address          string           `json:"address,omitempty" validate:"max=255"`
	MembershipStatus MembershipStatus `json:"membershipStatus,omitempty" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}
