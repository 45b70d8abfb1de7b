package relief

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relive.org/internal/auth"
)

type fixture struct {
	store *InMemory

	shelterUser   string
	donorUser     string
	volunteerUser string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:         NewInMemory(),
		shelterUser:   "user-shelter",
		donorUser:     "user-donor",
		volunteerUser: "user-volunteer",
	}
	ctx := context.Background()
	_, err := f.store.EnsureProfile(ctx, f.shelterUser, auth.RoleShelter, "Hope Shelter", "shelter@example.org")
	require.NoError(t, err)
	_, err = f.store.EnsureProfile(ctx, f.donorUser, auth.RoleDonor, "Dana Donor", "donor@example.org")
	require.NoError(t, err)
	_, err = f.store.EnsureProfile(ctx, f.volunteerUser, auth.RoleVolunteer, "Vic Volunteer", "volunteer@example.org")
	require.NoError(t, err)
	return f
}

func (f *fixture) createRequest(t *testing.T, quantity float64, unit string) Request {
	t.Helper()
	req, err := f.store.CreateRequest(context.Background(), f.shelterUser, RequestInput{
		Type:     "Rice",
		Quantity: quantity,
		Unit:     unit,
		Urgency:  UrgencyMedium,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) fulfill(t *testing.T, requestID string, quantity float64, unit string) (FulfillmentResult, error) {
	t.Helper()
	return f.store.Fulfill(context.Background(), f.donorUser, FulfillmentInput{
		RequestID:      requestID,
		FoodType:       "Rice",
		Quantity:       quantity,
		Unit:           unit,
		PickupLocation: "Dock 3",
	})
}

func TestFulfillmentLifecycle(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest(t, 100, "kg")

	first, err := f.fulfill(t, req.ID, 60, "kg")
	require.NoError(t, err)
	assert.NotEmpty(t, first.DonationID)
	assert.Equal(t, RequestMatched, first.RequestStatus)
	assert.Equal(t, 40.0, first.RemainingQuantity)

	second, err := f.fulfill(t, req.ID, 40, "kg")
	require.NoError(t, err)
	assert.Equal(t, RequestFulfilled, second.RequestStatus)
	assert.Equal(t, 0.0, second.RemainingQuantity)

	// A fulfilled request accepts no further donations.
	_, err = f.fulfill(t, req.ID, 1, "kg")
	assert.ErrorIs(t, err, ErrAlreadyFulfilled)

	// Fulfilled requests drop out of the open listing.
	open, err := f.store.ListOpenRequests(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)

	// The donor sees both donations, tagged with the shelter's name.
	donations, err := f.store.ListDonorDonations(context.Background(), f.donorUser)
	require.NoError(t, err)
	require.Len(t, donations, 2)
	for _, d := range donations {
		assert.Equal(t, "Hope Shelter", d.ShelterName)
	}
}

func TestFulfillRejectionsLeaveNoWrites(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest(t, 100, "kg")

	_, err := f.fulfill(t, req.ID, 60, "lbs")
	assert.ErrorIs(t, err, ErrUnitMismatch)

	_, err = f.fulfill(t, req.ID, 0, "kg")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.fulfill(t, "missing-request", 60, "kg")
	assert.ErrorIs(t, err, ErrNotFound)

	donations, err := f.store.ListDonorDonations(context.Background(), f.donorUser)
	require.NoError(t, err)
	assert.Empty(t, donations)

	open, err := f.store.ListOpenRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 100.0, open[0].Quantity)
	assert.Equal(t, RequestOpen, open[0].Status)
}

func TestStandaloneDonation(t *testing.T) {
	f := newFixture(t)

	res, err := f.store.Fulfill(context.Background(), f.donorUser, FulfillmentInput{
		FoodType:       "Bread",
		Quantity:       12,
		Unit:           "loaves",
		PickupLocation: "Bakery",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DonationID)
	assert.Empty(t, res.RequestStatus)

	donations, err := f.store.ListDonorDonations(context.Background(), f.donorUser)
	require.NoError(t, err)
	require.Len(t, donations, 1)
	assert.Equal(t, "12 loaves", donations[0].Quantity)
	assert.Empty(t, donations[0].ShelterID)
	assert.Equal(t, DonationPending, donations[0].Status)
}

func TestDeleteRequestIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest(t, 10, "kg")

	other := "user-other-shelter"
	_, err := f.store.EnsureProfile(context.Background(), other, auth.RoleShelter, "Other", "other@example.org")
	require.NoError(t, err)

	// Non-owner delete reports not found, not forbidden.
	assert.ErrorIs(t, f.store.DeleteRequest(context.Background(), other, req.ID), ErrNotFound)

	require.NoError(t, f.store.DeleteRequest(context.Background(), f.shelterUser, req.ID))
	assert.ErrorIs(t, f.store.DeleteRequest(context.Background(), f.shelterUser, req.ID), ErrNotFound)
}

func TestDeleteDonationOnlyWhilePending(t *testing.T) {
	f := newFixture(t)

	res, err := f.store.Fulfill(context.Background(), f.donorUser, FulfillmentInput{
		FoodType: "Bread", Quantity: 5, Unit: "loaves",
	})
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteDonation(context.Background(), f.donorUser, res.DonationID))
	assert.ErrorIs(t, f.store.DeleteDonation(context.Background(), f.donorUser, res.DonationID), ErrNotFound)
}

func TestProfileResolution(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Fulfill(context.Background(), "unregistered", FulfillmentInput{
		FoodType: "Rice", Quantity: 1, Unit: "kg",
	})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = f.store.CreateRequest(context.Background(), f.donorUser, RequestInput{
		Type: "Rice", Quantity: 1, Unit: "kg",
	})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	// EnsureProfile is idempotent: the same profile comes back.
	p1, err := f.store.EnsureProfile(context.Background(), f.donorUser, auth.RoleDonor, "Dana Donor", "donor@example.org")
	require.NoError(t, err)
	p2, err := f.store.EnsureProfile(context.Background(), f.donorUser, auth.RoleDonor, "Dana Donor", "donor@example.org")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
}

func (f *fixture) createOpportunity(t *testing.T, in OpportunityInput) Opportunity {
	t.Helper()
	opp, err := f.store.CreateOpportunity(context.Background(), f.shelterUser, in)
	require.NoError(t, err)
	return opp
}

func TestApplyCapacityAndUniqueness(t *testing.T) {
	f := newFixture(t)
	opp := f.createOpportunity(t, OpportunityInput{
		Title: "Sort inventory", TaskType: "Warehouse", VolunteersNeeded: 2, Urgency: UrgencyHigh,
	})

	second := "user-volunteer-2"
	third := "user-volunteer-3"
	for _, u := range []string{second, third} {
		_, err := f.store.EnsureProfile(context.Background(), u, auth.RoleVolunteer, u, u+"@example.org")
		require.NoError(t, err)
	}

	res, err := f.store.Apply(context.Background(), f.volunteerUser, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.VolunteersAssigned)
	assert.Equal(t, OpportunityOpen, res.Status)

	// Applying twice is rejected and does not consume capacity.
	_, err = f.store.Apply(context.Background(), f.volunteerUser, opp.ID)
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	res, err = f.store.Apply(context.Background(), second, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.VolunteersAssigned)
	assert.Equal(t, OpportunityFilled, res.Status)

	_, err = f.store.Apply(context.Background(), third, opp.ID)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestApplyMissingOpportunity(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Apply(context.Background(), f.volunteerUser, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVisibleOpportunitiesExcludePastAndOrderByUrgency(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return base })

	tomorrow := base.AddDate(0, 0, 1)
	nextWeek := base.AddDate(0, 0, 7)
	yesterday := base.AddDate(0, 0, -1)

	f.createOpportunity(t, OpportunityInput{Title: "Low later", TaskType: "t", DateNeeded: &nextWeek, Urgency: UrgencyLow})
	urgent := f.createOpportunity(t, OpportunityInput{Title: "Urgent soon", TaskType: "t", DateNeeded: &tomorrow, Urgency: UrgencyUrgent})
	f.createOpportunity(t, OpportunityInput{Title: "Past", TaskType: "t", DateNeeded: &yesterday, Urgency: UrgencyUrgent})
	f.createOpportunity(t, OpportunityInput{Title: "Undated", TaskType: "t", Urgency: UrgencyLow})

	visible, err := f.store.ListVisibleOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, visible, 3)
	assert.Equal(t, urgent.ID, visible[0].ID)
	assert.Equal(t, "Low later", visible[1].Title)
	// Dateless opportunities sort after dated ones of equal urgency.
	assert.Equal(t, "Undated", visible[2].Title)
}

func TestVisibleOpportunitiesSameDayOrderByTime(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return base })

	today := base
	evening := f.createOpportunity(t, OpportunityInput{
		Title: "Evening", TaskType: "t", DateNeeded: &today, TimeNeeded: "19:00:00", Urgency: UrgencyHigh,
	})
	morning := f.createOpportunity(t, OpportunityInput{
		Title: "Morning", TaskType: "t", DateNeeded: &today, TimeNeeded: "09:00:00", Urgency: UrgencyHigh,
	})

	visible, err := f.store.ListVisibleOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, visible, 2)
	// Equal urgency and date: the earlier scheduled time lists first.
	assert.Equal(t, morning.ID, visible[0].ID)
	assert.Equal(t, evening.ID, visible[1].ID)
}

func TestVolunteerTasksCompleteLazily(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return base })

	tomorrow := base.AddDate(0, 0, 1)
	opp := f.createOpportunity(t, OpportunityInput{
		Title: "Serve lunch", TaskType: "Kitchen", DateNeeded: &tomorrow, TimeNeeded: "13:00:00",
	})
	_, err := f.store.Apply(context.Background(), f.volunteerUser, opp.ID)
	require.NoError(t, err)

	tasks, err := f.store.VolunteerTasks(context.Background(), f.volunteerUser)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, AssignmentAssigned, tasks[0].Status)
	assert.Equal(t, "Serve lunch", tasks[0].Title)

	// Past the scheduled moment the assignment reads Completed, and stays so.
	f.store.SetClock(func() time.Time { return tomorrow.Add(14 * time.Hour) })
	for range 2 {
		tasks, err = f.store.VolunteerTasks(context.Background(), f.volunteerUser)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, AssignmentCompleted, tasks[0].Status)
	}
}
