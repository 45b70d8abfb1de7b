package relief

import (
	"context"
	"strconv"
	"strings"
	"time"

	"relive.org/internal/auth"
)

// RequestInput is the payload for creating a shelter request.
type RequestInput struct {
	Type        string
	Quantity    float64
	Unit        string
	Urgency     Urgency
	Description string
}

// FulfillmentInput is the payload for recording a donation. RequestID is
// optional: without it the donation is standalone and no match is created.
type FulfillmentInput struct {
	RequestID      string
	FoodType       string
	Quantity       float64
	Unit           string
	ExpiryDate     *time.Time
	PickupLocation string
	Notes          string
}

// OpportunityInput is the payload for posting a volunteer opportunity.
type OpportunityInput struct {
	Title            string
	Description      string
	TaskType         string
	VolunteersNeeded int
	DateNeeded       *time.Time
	TimeNeeded       string
	DurationHours    float64
	Location         string
	Urgency          Urgency
}

// Service defines the matching workflow. Role-scoped operations are keyed by
// the authenticated user id and resolve the role profile themselves, failing
// with ErrProfileNotFound when registration did not create the expected row.
type Service interface {
	// EnsureProfile creates the role profile for a user if it does not exist
	// yet. Roles without a profile table are a no-op.
	EnsureProfile(ctx context.Context, userID string, role auth.Role, name, email string) (Profile, error)

	CreateRequest(ctx context.Context, shelterUserID string, in RequestInput) (Request, error)
	DeleteRequest(ctx context.Context, shelterUserID, requestID string) error
	ListOpenRequests(ctx context.Context) ([]Request, error)
	ListShelterRequests(ctx context.Context, shelterUserID string) ([]Request, error)

	// Fulfill records a donation, optionally against a request, as one atomic
	// unit: donation insert, match insert and request quantity/status update
	// all commit or none do.
	Fulfill(ctx context.Context, donorUserID string, in FulfillmentInput) (FulfillmentResult, error)
	ListDonorDonations(ctx context.Context, donorUserID string) ([]Donation, error)
	DeleteDonation(ctx context.Context, donorUserID, donationID string) error

	CreateOpportunity(ctx context.Context, shelterUserID string, in OpportunityInput) (Opportunity, error)
	DeleteOpportunity(ctx context.Context, shelterUserID, opportunityID string) error
	ListVisibleOpportunities(ctx context.Context) ([]Opportunity, error)

	// Apply assigns a volunteer to an opportunity atomically, enforcing
	// capacity and one application per (opportunity, volunteer).
	Apply(ctx context.Context, volunteerUserID, opportunityID string) (ApplicationResult, error)
	VolunteerTasks(ctx context.Context, volunteerUserID string) ([]Assignment, error)
}

// ApplyFulfillment debits a donated quantity from a request and derives the
// next status. This is the central business rule: quantity is monotonically
// non-increasing once matching begins and reaches zero exactly when the
// request is Fulfilled.
func ApplyFulfillment(req *Request, donatedQuantity float64, donatedUnit string) error {
	if req.Status == RequestFulfilled {
		return ErrAlreadyFulfilled
	}
	if donatedQuantity <= 0 {
		return ErrInvalidQuantity
	}
	if !strings.EqualFold(strings.TrimSpace(donatedUnit), strings.TrimSpace(req.Unit)) {
		return ErrUnitMismatch
	}
	remaining := req.Quantity - donatedQuantity
	if remaining <= 0 {
		req.Quantity = 0
		req.Status = RequestFulfilled
	} else {
		req.Quantity = remaining
		req.Status = RequestMatched
	}
	return nil
}

// FormatQuantity renders the combined "amount unit" string persisted on
// donation rows.
func FormatQuantity(quantity float64, unit string) string {
	return strconv.FormatFloat(quantity, 'f', -1, 64) + " " + strings.TrimSpace(unit)
}
