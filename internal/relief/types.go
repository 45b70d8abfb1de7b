package relief

import (
	"errors"
	"strings"
	"time"
)

// Urgency ranks shelter needs. Rank orders the public listings: Urgent first.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
	UrgencyUrgent Urgency = "Urgent"
)

// ParseUrgency normalizes an urgency string, defaulting to Medium.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow
	case "high":
		return UrgencyHigh
	case "urgent":
		return UrgencyUrgent
	default:
		return UrgencyMedium
	}
}

// Rank returns the sort key for listings: Urgent=1 .. Low=4.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyUrgent:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 3
	default:
		return 4
	}
}

// RequestStatus is the request lifecycle: Open -> Matched -> Fulfilled.
type RequestStatus string

const (
	RequestOpen      RequestStatus = "Open"
	RequestMatched   RequestStatus = "Matched"
	RequestFulfilled RequestStatus = "Fulfilled"
)

type DonationStatus string

const (
	DonationPending   DonationStatus = "Pending"
	DonationMatched   DonationStatus = "Matched"
	DonationDelivered DonationStatus = "Delivered"
)

type OpportunityStatus string

const (
	OpportunityOpen   OpportunityStatus = "Open"
	OpportunityFilled OpportunityStatus = "Filled"
)

type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "Assigned"
	AssignmentCompleted AssignmentStatus = "Completed"
)

// Request is a shelter's open need. Quantity always holds the remaining
// unfulfilled amount; it reaches zero exactly when status becomes Fulfilled.
type Request struct {
	ID          string        `json:"request_id"`
	ShelterID   string        `json:"shelter_id"`
	Type        string        `json:"request_type"`
	Quantity    float64       `json:"quantity"`
	Unit        string        `json:"unit"`
	Urgency     Urgency       `json:"urgency_level"`
	Status      RequestStatus `json:"status"`
	Description string        `json:"description,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
}

// Donation is donor-supplied food, optionally already routed to a shelter.
// Quantity is the combined "amount unit" string the original schema stores.
type Donation struct {
	ID         string         `json:"donation_id"`
	DonorID    string         `json:"donor_id"`
	ShelterID  string         `json:"shelter_id,omitempty"`
	FoodType   string         `json:"food_type"`
	Quantity   string         `json:"quantity"`
	ExpiryDate *time.Time     `json:"expiry_date,omitempty"`
	Location   string         `json:"location,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Status     DonationStatus `json:"status"`
	DonatedAt  time.Time      `json:"donated_at"`

	// ShelterName is populated on donor-facing listings.
	ShelterName string `json:"shelter_name,omitempty"`
}

// Match links a donation to the request it satisfied (fully or partially).
// Status is written once at creation and never re-derived afterwards.
type Match struct {
	ID          string    `json:"match_id"`
	DonationID  string    `json:"donation_id"`
	RequestID   string    `json:"request_id"`
	VolunteerID string    `json:"volunteer_id,omitempty"`
	MatchedOn   time.Time `json:"matched_on"`
	Status      string    `json:"status"`
}

// Opportunity is a shelter-posted volunteer task with bounded capacity.
// Invariant: 0 <= VolunteersAssigned <= VolunteersNeeded, and status is
// Filled exactly when assigned has reached needed.
type Opportunity struct {
	ID                 string            `json:"opportunity_id"`
	ShelterID          string            `json:"shelter_id"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	TaskType           string            `json:"task_type"`
	VolunteersNeeded   int               `json:"volunteers_needed"`
	VolunteersAssigned int               `json:"volunteers_assigned"`
	DateNeeded         *time.Time        `json:"date_needed,omitempty"`
	TimeNeeded         string            `json:"time_needed,omitempty"`
	DurationHours      float64           `json:"duration_hours,omitempty"`
	Location           string            `json:"location,omitempty"`
	Urgency            Urgency           `json:"urgency_level"`
	Status             OpportunityStatus `json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
}

// Deadline combines date_needed and time_needed into the moment the
// opportunity stops being visible. Missing time defaults to end of day.
// The zero time means the opportunity never expires.
func (o Opportunity) Deadline() time.Time {
	if o.DateNeeded == nil {
		return time.Time{}
	}
	d := *o.DateNeeded
	hour, min, sec := 23, 59, 59
	if t, err := time.Parse("15:04:05", o.TimeNeeded); err == nil {
		hour, min, sec = t.Hour(), t.Minute(), t.Second()
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, sec, 0, d.Location())
}

// Expired reports whether the scheduled moment has passed.
func (o Opportunity) Expired(now time.Time) bool {
	deadline := o.Deadline()
	return !deadline.IsZero() && now.After(deadline)
}

// Assignment links a volunteer to an opportunity. At most one assignment
// exists per (opportunity, volunteer) pair.
type Assignment struct {
	ID            string           `json:"assignment_id"`
	OpportunityID string           `json:"opportunity_id"`
	VolunteerID   string           `json:"volunteer_id"`
	AssignedAt    time.Time        `json:"assigned_at"`
	Status        AssignmentStatus `json:"status"`

	// Listing fields joined from the opportunity.
	Title      string     `json:"title,omitempty"`
	TaskType   string     `json:"task_type,omitempty"`
	DateNeeded *time.Time `json:"date_needed,omitempty"`
	TimeNeeded string     `json:"time_needed,omitempty"`
}

// Profile is a role-specific record (donor, volunteer or shelter) owned by
// exactly one user.
type Profile struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// FulfillmentResult reports the committed outcome of a fulfillment.
type FulfillmentResult struct {
	DonationID        string        `json:"donationId"`
	RequestStatus     RequestStatus `json:"requestStatus,omitempty"`
	RemainingQuantity float64       `json:"remainingQuantity"`
}

// ApplicationResult reports the committed outcome of an application.
type ApplicationResult struct {
	VolunteersAssigned int               `json:"volunteers_assigned"`
	Status             OpportunityStatus `json:"status"`
}

var (
	ErrNotFound         = errors.New("relief: not found")
	ErrProfileNotFound  = errors.New("relief: profile not found")
	ErrInvalidQuantity  = errors.New("relief: quantity must be greater than zero")
	ErrUnitMismatch     = errors.New("relief: donation unit does not match request unit")
	ErrAlreadyFulfilled = errors.New("relief: request already fulfilled")
	ErrNotPending       = errors.New("relief: donation is no longer pending")
	ErrNotOpen          = errors.New("relief: opportunity is not open")
	ErrAlreadyFull      = errors.New("relief: opportunity already has enough volunteers")
	ErrAlreadyApplied   = errors.New("relief: volunteer already applied to this opportunity")
)
