package httpapi

import (
	"net/http"

	"relive.org/internal/obs"
	"relive.org/internal/relief"
)

type createOpportunityRequest struct {
	Title            string  `json:"title" validate:"required"`
	Description      string  `json:"description"`
	TaskType         string  `json:"task_type" validate:"required"`
	VolunteersNeeded int     `json:"volunteers_needed"`
	DateNeeded       string  `json:"date_needed"`
	TimeNeeded       string  `json:"time_needed"`
	DurationHours    float64 `json:"duration_hours"`
	Location         string  `json:"location"`
	Urgency          string  `json:"urgency_level"`
}

func (a *API) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req createOpportunityRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate(req.DateNeeded)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid date_needed")
		return
	}

	created, err := a.relief.CreateOpportunity(r.Context(), principal(r).UserID, relief.OpportunityInput{
		Title:            req.Title,
		Description:      req.Description,
		TaskType:         req.TaskType,
		VolunteersNeeded: req.VolunteersNeeded,
		DateNeeded:       date,
		TimeNeeded:       req.TimeNeeded,
		DurationHours:    req.DurationHours,
		Location:         req.Location,
		Urgency:          relief.ParseUrgency(req.Urgency),
	})
	if err != nil {
		handleReliefError(w, r, err)
		return
	}

	a.auditEvent(r, "opportunity.created", "opportunity", created.ID, map[string]any{
		"title":     created.Title,
		"task_type": created.TaskType,
		"needed":    created.VolunteersNeeded,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"opportunity_id": created.ID,
	})
}

func (a *API) handleDeleteOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.relief.DeleteOpportunity(r.Context(), principal(r).UserID, id); err != nil {
		handleReliefError(w, r, err)
		return
	}
	a.auditEvent(r, "opportunity.deleted", "opportunity", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "opportunity deleted"})
}

func (a *API) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	list, err := a.relief.ListVisibleOpportunities(r.Context())
	if err != nil {
		handleReliefError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleApply(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := a.relief.Apply(r.Context(), principal(r).UserID, id)
	if err != nil {
		obs.ObserveApplication("rejected")
		handleReliefError(w, r, err)
		return
	}

	obs.ObserveApplication(string(res.Status))
	a.auditEvent(r, "opportunity.applied", "opportunity", id, map[string]any{
		"volunteers_assigned": res.VolunteersAssigned,
		"status":              string(res.Status),
	})
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleVolunteerTasks(w http.ResponseWriter, r *http.Request) {
	list, err := a.relief.VolunteerTasks(r.Context(), principal(r).UserID)
	if err != nil {
		handleReliefError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
