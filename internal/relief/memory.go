package relief

import (
	"context"
	"sort"
	"sync"
	"time"

	"relive.org/internal/auth"
	"relive.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety. It backs
// the HTTP-layer tests and local development; the Postgres store is the
// durable implementation.
type InMemory struct {
	mu  sync.Mutex
	now func() time.Time

	profiles      map[auth.Role]map[string]*Profile // role -> userID -> profile
	requests      map[string]*Request
	donations     map[string]*Donation
	matches       map[string]*Match
	opportunities map[string]*Opportunity
	assignments   map[string]*Assignment
	shelterNames  map[string]string // shelter profile id -> name
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty in-process store.
func NewInMemory() *InMemory {
	return &InMemory{
		now: time.Now,
		profiles: map[auth.Role]map[string]*Profile{
			auth.RoleDonor:     {},
			auth.RoleVolunteer: {},
			auth.RoleShelter:   {},
		},
		requests:      make(map[string]*Request),
		donations:     make(map[string]*Donation),
		matches:       make(map[string]*Match),
		opportunities: make(map[string]*Opportunity),
		assignments:   make(map[string]*Assignment),
		shelterNames:  make(map[string]string),
	}
}

// SetClock overrides the time source for tests.
func (s *InMemory) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.now = fn
	}
}

func (s *InMemory) EnsureProfile(_ context.Context, userID string, role auth.Role, name, email string) (Profile, error) {
	if !role.HasProfile() {
		return Profile{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[role][userID]; ok {
		return *p, nil
	}
	p := &Profile{ID: ids.New(), UserID: userID, Name: name, Email: email}
	s.profiles[role][userID] = p
	if role == auth.RoleShelter {
		s.shelterNames[p.ID] = name
	}
	return *p, nil
}

func (s *InMemory) profile(role auth.Role, userID string) (*Profile, error) {
	p, ok := s.profiles[role][userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

func (s *InMemory) CreateRequest(_ context.Context, shelterUserID string, in RequestInput) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shelter, err := s.profile(auth.RoleShelter, shelterUserID)
	if err != nil {
		return Request{}, err
	}
	if in.Quantity <= 0 {
		return Request{}, ErrInvalidQuantity
	}
	req := &Request{
		ID:          ids.New(),
		ShelterID:   shelter.ID,
		Type:        in.Type,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		Urgency:     in.Urgency,
		Status:      RequestOpen,
		Description: in.Description,
		RequestedAt: s.now().UTC(),
	}
	s.requests[req.ID] = req
	return *req, nil
}

func (s *InMemory) DeleteRequest(_ context.Context, shelterUserID, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	shelter, err := s.profile(auth.RoleShelter, shelterUserID)
	if err != nil {
		return err
	}
	req, ok := s.requests[requestID]
	if !ok || req.ShelterID != shelter.ID {
		return ErrNotFound
	}
	delete(s.requests, requestID)
	for id, m := range s.matches {
		if m.RequestID == requestID {
			delete(s.matches, id)
		}
	}
	return nil
}

func (s *InMemory) ListOpenRequests(context.Context) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Request
	for _, req := range s.requests {
		if req.Status != RequestFulfilled {
			res = append(res, *req)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Urgency.Rank() != res[j].Urgency.Rank() {
			return res[i].Urgency.Rank() < res[j].Urgency.Rank()
		}
		return res[i].RequestedAt.After(res[j].RequestedAt)
	})
	return res, nil
}

func (s *InMemory) ListShelterRequests(_ context.Context, shelterUserID string) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shelter, err := s.profile(auth.RoleShelter, shelterUserID)
	if err != nil {
		return nil, err
	}
	var res []Request
	for _, req := range s.requests {
		if req.ShelterID == shelter.ID {
			res = append(res, *req)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RequestedAt.After(res[j].RequestedAt) })
	return res, nil
}

func (s *InMemory) Fulfill(_ context.Context, donorUserID string, in FulfillmentInput) (FulfillmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	donor, err := s.profile(auth.RoleDonor, donorUserID)
	if err != nil {
		return FulfillmentResult{}, err
	}
	if in.Quantity <= 0 {
		return FulfillmentResult{}, ErrInvalidQuantity
	}

	var req *Request
	if in.RequestID != "" {
		var ok bool
		req, ok = s.requests[in.RequestID]
		if !ok {
			return FulfillmentResult{}, ErrNotFound
		}
		// Preflight the debit on a copy so a failure leaves no writes behind.
		probe := *req
		if err := ApplyFulfillment(&probe, in.Quantity, in.Unit); err != nil {
			return FulfillmentResult{}, err
		}
	}

	donation := &Donation{
		ID:         ids.New(),
		DonorID:    donor.ID,
		FoodType:   in.FoodType,
		Quantity:   FormatQuantity(in.Quantity, in.Unit),
		ExpiryDate: in.ExpiryDate,
		Location:   in.PickupLocation,
		Notes:      in.Notes,
		Status:     DonationPending,
		DonatedAt:  s.now().UTC(),
	}
	result := FulfillmentResult{DonationID: donation.ID}

	if req != nil {
		donation.ShelterID = req.ShelterID
		match := &Match{
			ID:         ids.New(),
			DonationID: donation.ID,
			RequestID:  req.ID,
			MatchedOn:  s.now().UTC(),
			Status:     "Pending",
		}
		s.matches[match.ID] = match
		if err := ApplyFulfillment(req, in.Quantity, in.Unit); err != nil {
			return FulfillmentResult{}, err
		}
		result.RequestStatus = req.Status
		result.RemainingQuantity = req.Quantity
	}

	s.donations[donation.ID] = donation
	return result, nil
}

func (s *InMemory) ListDonorDonations(_ context.Context, donorUserID string) ([]Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	donor, err := s.profile(auth.RoleDonor, donorUserID)
	if err != nil {
		return nil, err
	}
	var res []Donation
	for _, d := range s.donations {
		if d.DonorID == donor.ID {
			cp := *d
			cp.ShelterName = s.shelterNames[d.ShelterID]
			res = append(res, cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DonatedAt.After(res[j].DonatedAt) })
	return res, nil
}

func (s *InMemory) DeleteDonation(_ context.Context, donorUserID, donationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	donor, err := s.profile(auth.RoleDonor, donorUserID)
	if err != nil {
		return err
	}
	d, ok := s.donations[donationID]
	if !ok || d.DonorID != donor.ID {
		return ErrNotFound
	}
	if d.Status != DonationPending {
		return ErrNotPending
	}
	delete(s.donations, donationID)
	for id, m := range s.matches {
		if m.DonationID == donationID {
			delete(s.matches, id)
		}
	}
	return nil
}

func (s *InMemory) CreateOpportunity(_ context.Context, shelterUserID string, in OpportunityInput) (Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shelter, err := s.profile(auth.RoleShelter, shelterUserID)
	if err != nil {
		return Opportunity{}, err
	}
	needed := in.VolunteersNeeded
	if needed < 1 {
		needed = 1
	}
	opp := &Opportunity{
		ID:                 ids.New(),
		ShelterID:          shelter.ID,
		Title:              in.Title,
		Description:        in.Description,
		TaskType:           in.TaskType,
		VolunteersNeeded:   needed,
		VolunteersAssigned: 0,
		DateNeeded:         in.DateNeeded,
		TimeNeeded:         in.TimeNeeded,
		DurationHours:      in.DurationHours,
		Location:           in.Location,
		Urgency:            in.Urgency,
		Status:             OpportunityOpen,
		CreatedAt:          s.now().UTC(),
	}
	s.opportunities[opp.ID] = opp
	return *opp, nil
}

func (s *InMemory) DeleteOpportunity(_ context.Context, shelterUserID, opportunityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	shelter, err := s.profile(auth.RoleShelter, shelterUserID)
	if err != nil {
		return err
	}
	opp, ok := s.opportunities[opportunityID]
	if !ok || opp.ShelterID != shelter.ID {
		return ErrNotFound
	}
	delete(s.opportunities, opportunityID)
	for id, a := range s.assignments {
		if a.OpportunityID == opportunityID {
			delete(s.assignments, id)
		}
	}
	return nil
}

func (s *InMemory) ListVisibleOpportunities(context.Context) ([]Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// Cleanup before listing: complete assignments whose opportunity has
	// passed its scheduled moment. Idempotent on repeat evaluation.
	for _, a := range s.assignments {
		if a.Status != AssignmentAssigned {
			continue
		}
		if opp, ok := s.opportunities[a.OpportunityID]; ok && opp.Expired(now) {
			a.Status = AssignmentCompleted
		}
	}
	var res []Opportunity
	for _, opp := range s.opportunities {
		if opp.Expired(now) {
			continue
		}
		res = append(res, *opp)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Urgency.Rank() != res[j].Urgency.Rank() {
			return res[i].Urgency.Rank() < res[j].Urgency.Rank()
		}
		di, dj := res[i].Deadline(), res[j].Deadline()
		if !di.Equal(dj) {
			if di.IsZero() {
				return false
			}
			if dj.IsZero() {
				return true
			}
			return di.Before(dj)
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s *InMemory) Apply(_ context.Context, volunteerUserID, opportunityID string) (ApplicationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	volunteer, err := s.profile(auth.RoleVolunteer, volunteerUserID)
	if err != nil {
		return ApplicationResult{}, err
	}
	opp, ok := s.opportunities[opportunityID]
	if !ok {
		return ApplicationResult{}, ErrNotFound
	}
	if opp.Status != OpportunityOpen {
		return ApplicationResult{}, ErrNotOpen
	}
	if opp.VolunteersAssigned >= opp.VolunteersNeeded {
		return ApplicationResult{}, ErrAlreadyFull
	}
	for _, a := range s.assignments {
		if a.OpportunityID == opportunityID && a.VolunteerID == volunteer.ID {
			return ApplicationResult{}, ErrAlreadyApplied
		}
	}

	assignment := &Assignment{
		ID:            ids.New(),
		OpportunityID: opportunityID,
		VolunteerID:   volunteer.ID,
		AssignedAt:    s.now().UTC(),
		Status:        AssignmentAssigned,
	}
	s.assignments[assignment.ID] = assignment

	opp.VolunteersAssigned++
	if opp.VolunteersAssigned >= opp.VolunteersNeeded {
		opp.Status = OpportunityFilled
	}
	return ApplicationResult{VolunteersAssigned: opp.VolunteersAssigned, Status: opp.Status}, nil
}

func (s *InMemory) VolunteerTasks(_ context.Context, volunteerUserID string) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	volunteer, err := s.profile(auth.RoleVolunteer, volunteerUserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var res []Assignment
	for _, a := range s.assignments {
		if a.VolunteerID != volunteer.ID {
			continue
		}
		if opp, ok := s.opportunities[a.OpportunityID]; ok {
			// Lazy transition: an assignment completes once its opportunity's
			// scheduled moment has passed.
			if a.Status == AssignmentAssigned && opp.Expired(now) {
				a.Status = AssignmentCompleted
			}
			cp := *a
			cp.Title = opp.Title
			cp.TaskType = opp.TaskType
			cp.DateNeeded = opp.DateNeeded
			cp.TimeNeeded = opp.TimeNeeded
			res = append(res, cp)
		} else {
			res = append(res, *a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AssignedAt.After(res[j].AssignedAt) })
	return res, nil
}
