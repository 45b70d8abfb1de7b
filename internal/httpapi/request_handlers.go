package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"relive.org/internal/ids"
	"relive.org/internal/obs"
	"relive.org/internal/relief"
)

type createRequestRequest struct {
	Type        string  `json:"request_type" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	Unit        string  `json:"unit" validate:"required"`
	Urgency     string  `json:"urgency_level"`
	Description string  `json:"description"`
}

type fulfillRequest struct {
	FoodType       string  `json:"foodType" validate:"required"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	Unit           string  `json:"unit" validate:"required"`
	ExpiryDate     string  `json:"expiryDate"`
	PickupLocation string  `json:"pickupLocation"`
	Notes          string  `json:"notes"`
}

type createDonationRequest struct {
	RequestID      string  `json:"request_id"`
	FoodType       string  `json:"foodType" validate:"required"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	Unit           string  `json:"unit" validate:"required"`
	ExpiryDate     string  `json:"expiryDate"`
	PickupLocation string  `json:"pickupLocation"`
	Notes          string  `json:"notes"`
}

func (a *API) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.relief.CreateRequest(r.Context(), principal(r).UserID, relief.RequestInput{
		Type:        req.Type,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		Urgency:     relief.ParseUrgency(req.Urgency),
		Description: req.Description,
	})
	if err != nil {
		handleReliefError(w, r, err)
		return
	}

	a.auditEvent(r, "request.created", "request", created.ID, map[string]any{
		"request_type": created.Type,
		"quantity":     created.Quantity,
		"unit":         created.Unit,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.relief.DeleteRequest(r.Context(), principal(r).UserID, id); err != nil {
		handleReliefError(w, r, err)
		return
	}
	a.auditEvent(r, "request.deleted", "request", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "request deleted"})
}

func (a *API) handleListOpenRequests(w http.ResponseWriter, r *http.Request) {
	list, err := a.relief.ListOpenRequests(r.Context())
	if err != nil {
		handleReliefError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleShelterRequests(w http.ResponseWriter, r *http.Request) {
	list, err := a.relief.ListShelterRequests(r.Context(), principal(r).UserID)
	if err != nil {
		handleReliefError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleFulfillRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req fulfillRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid expiryDate")
		return
	}

	res, err := a.relief.Fulfill(r.Context(), principal(r).UserID, relief.FulfillmentInput{
		RequestID:      id,
		FoodType:       req.FoodType,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		ExpiryDate:     expiry,
		PickupLocation: req.PickupLocation,
		Notes:          req.Notes,
	})
	if err != nil {
		obs.ObserveFulfillment("rejected")
		handleReliefError(w, r, err)
		return
	}

	obs.ObserveFulfillment(string(res.RequestStatus))
	a.auditEvent(r, "donation.fulfilled", "donation", res.DonationID, map[string]any{
		"request_id":     id,
		"request_status": string(res.RequestStatus),
		"remaining":      res.RemainingQuantity,
	})
	writeJSON(w, http.StatusCreated, res)
}

// handleCreateDonation records a standalone donation: no request, no match.
func (a *API) handleCreateDonation(w http.ResponseWriter, r *http.Request) {
	var req createDonationRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RequestID != "" {
		writeError(w, r, http.StatusBadRequest, "use the fulfill endpoint to donate against a request")
		return
	}
	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid expiryDate")
		return
	}

	res, err := a.relief.Fulfill(r.Context(), principal(r).UserID, relief.FulfillmentInput{
		FoodType:       req.FoodType,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		ExpiryDate:     expiry,
		PickupLocation: req.PickupLocation,
		Notes:          req.Notes,
	})
	if err != nil {
		handleReliefError(w, r, err)
		return
	}

	obs.ObserveFulfillment("standalone")
	a.auditEvent(r, "donation.created", "donation", res.DonationID, map[string]any{
		"food_type": req.FoodType,
	})
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleDonorDonations(w http.ResponseWriter, r *http.Request) {
	list, err := a.relief.ListDonorDonations(r.Context(), principal(r).UserID)
	if err != nil {
		handleReliefError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleDeleteDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.relief.DeleteDonation(r.Context(), principal(r).UserID, id); err != nil {
		handleReliefError(w, r, err)
		return
	}
	a.auditEvent(r, "donation.deleted", "donation", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "donation deleted"})
}

// pathID pulls and validates the {id} path segment.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" || !ids.IsValid(id) {
		writeError(w, r, http.StatusNotFound, "not found")
		return "", false
	}
	return id, true
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	return nil, errors.New("unrecognized date format")
}
