package models

import (
	"time"

	"github.com/google/uuid"
)

// SignupStep names one stage of the sign-up wizard.
type SignupStep string

const (
	StepSignup       SignupStep = "signup"
	StepVerification SignupStep = "verification"
	StepBusiness     SignupStep = "business"
	StepContact      SignupStep = "contact"
	StepDone         SignupStep = "done"
)

// SignupSteps lists the wizard stages in the order they must be completed.
var SignupSteps = []SignupStep{StepSignup, StepVerification, StepBusiness, StepContact}

// Index returns the position of s in SignupSteps, or -1.
func (s SignupStep) Index() int {
	for i, step := range SignupSteps {
		if step == s {
			return i
		}
	}
	if s == StepDone {
		return len(SignupSteps)
	}
	return -1
}

// SignupData is captured on the first wizard page.
type SignupData struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// Empty reports whether nothing usable was captured.
func (d *SignupData) Empty() bool {
	return d == nil || (d.Email == "" && d.Phone == "")
}

// BusinessInfo describes the gym being registered.
type BusinessInfo struct {
	BusinessName string `json:"business_name"`
	BusinessType string `json:"business_type"`
	Branches     int    `json:"branches"`
	MemberCount  string `json:"member_count,omitempty"`
}

// Empty reports whether nothing usable was captured.
func (b *BusinessInfo) Empty() bool {
	return b == nil || b.BusinessName == ""
}

// ContactInfo is the gym's public contact block.
type ContactInfo struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code,omitempty"`
	Phone      string `json:"phone"`
}

// Empty reports whether nothing usable was captured.
func (c *ContactInfo) Empty() bool {
	return c == nil || (c.Address == "" && c.Phone == "")
}

// VerificationState tracks the e-mail/phone confirmation step.
type VerificationState struct {
	Complete bool      `json:"complete"`
	State    string    `json:"state,omitempty"`
	CodeHash string    `json:"-"`
	Attempts int       `json:"attempts"`
	SentAt   time.Time `json:"sent_at,omitempty"`
}

// SignupProgress is the durable record behind the sign-up wizard.
type SignupProgress struct {
	FlowID       uuid.UUID         `json:"flow_id" db:"flow_id"`
	CurrentStep  SignupStep        `json:"current_step" db:"current_step"`
	Signup       *SignupData       `json:"signup,omitempty" db:"signup_data"`
	Verification VerificationState `json:"verification" db:"verification"`
	Business     *BusinessInfo     `json:"business,omitempty" db:"business_info"`
	Contact      *ContactInfo      `json:"contact,omitempty" db:"contact_info"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the SignupProgress model
func (SignupProgress) TableName() string {
	return "signup_progress"
}

// NewSignupProgress starts a fresh wizard flow.
func NewSignupProgress() *SignupProgress {
	now := time.Now().UTC()
	return &SignupProgress{
		FlowID:      uuid.New(),
		CurrentStep: StepSignup,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
