package relief

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRequest(quantity float64, unit string) Request {
	return Request{
		ID:       "req-1",
		Type:     "Rice",
		Quantity: quantity,
		Unit:     unit,
		Status:   RequestOpen,
	}
}

func TestApplyFulfillmentPartialThenFull(t *testing.T) {
	req := openRequest(100, "kg")

	require.NoError(t, ApplyFulfillment(&req, 60, "kg"))
	assert.Equal(t, RequestMatched, req.Status)
	assert.Equal(t, 40.0, req.Quantity)

	require.NoError(t, ApplyFulfillment(&req, 40, "kg"))
	assert.Equal(t, RequestFulfilled, req.Status)
	assert.Equal(t, 0.0, req.Quantity)
}

func TestApplyFulfillmentOverDonationClampsToZero(t *testing.T) {
	req := openRequest(100, "kg")

	require.NoError(t, ApplyFulfillment(&req, 150, "kg"))
	assert.Equal(t, RequestFulfilled, req.Status)
	assert.Equal(t, 0.0, req.Quantity)
}

func TestApplyFulfillmentQuantityNeverIncreases(t *testing.T) {
	req := openRequest(100, "kg")
	prev := req.Quantity
	for _, donated := range []float64{10, 25.5, 3, 60} {
		err := ApplyFulfillment(&req, donated, "kg")
		if req.Status == RequestFulfilled {
			assert.Equal(t, 0.0, req.Quantity)
			if err != nil {
				assert.ErrorIs(t, err, ErrAlreadyFulfilled)
			}
		} else {
			require.NoError(t, err)
		}
		assert.LessOrEqual(t, req.Quantity, prev)
		prev = req.Quantity
	}
}

func TestApplyFulfillmentUnitChecks(t *testing.T) {
	req := openRequest(100, "kg")

	// Case-insensitive match is accepted.
	require.NoError(t, ApplyFulfillment(&req, 10, "KG"))
	assert.Equal(t, 90.0, req.Quantity)

	// Different unit is rejected with no state change.
	err := ApplyFulfillment(&req, 10, "lbs")
	assert.ErrorIs(t, err, ErrUnitMismatch)
	assert.Equal(t, 90.0, req.Quantity)
	assert.Equal(t, RequestMatched, req.Status)
}

func TestApplyFulfillmentRejectsFulfilledAndNonPositive(t *testing.T) {
	req := openRequest(10, "kg")
	require.NoError(t, ApplyFulfillment(&req, 10, "kg"))

	assert.ErrorIs(t, ApplyFulfillment(&req, 1, "kg"), ErrAlreadyFulfilled)

	fresh := openRequest(10, "kg")
	assert.ErrorIs(t, ApplyFulfillment(&fresh, 0, "kg"), ErrInvalidQuantity)
	assert.ErrorIs(t, ApplyFulfillment(&fresh, -5, "kg"), ErrInvalidQuantity)
	assert.Equal(t, RequestOpen, fresh.Status)
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "60 kg", FormatQuantity(60, "kg"))
	assert.Equal(t, "2.5 liters", FormatQuantity(2.5, " liters "))
}

func TestParseUrgency(t *testing.T) {
	assert.Equal(t, UrgencyUrgent, ParseUrgency("urgent"))
	assert.Equal(t, UrgencyLow, ParseUrgency(" LOW "))
	assert.Equal(t, UrgencyMedium, ParseUrgency(""))
	assert.Equal(t, UrgencyMedium, ParseUrgency("nonsense"))
}

func TestUrgencyRankOrdersUrgentFirst(t *testing.T) {
	assert.Less(t, UrgencyUrgent.Rank(), UrgencyHigh.Rank())
	assert.Less(t, UrgencyHigh.Rank(), UrgencyMedium.Rank())
	assert.Less(t, UrgencyMedium.Rank(), UrgencyLow.Rank())
}

func TestOpportunityDeadline(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	noDate := Opportunity{}
	assert.True(t, noDate.Deadline().IsZero())
	assert.False(t, noDate.Expired(time.Now().Add(24*365*time.Hour)))

	withTime := Opportunity{DateNeeded: &date, TimeNeeded: "14:30:00"}
	assert.Equal(t, time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC), withTime.Deadline())
	assert.False(t, withTime.Expired(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)))
	assert.True(t, withTime.Expired(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)))

	// Missing time stretches visibility to end of day.
	dateOnly := Opportunity{DateNeeded: &date}
	assert.Equal(t, time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC), dateOnly.Deadline())
	assert.False(t, dateOnly.Expired(time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)))
	assert.True(t, dateOnly.Expired(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)))
}
