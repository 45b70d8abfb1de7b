package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"relive.org/internal/auth"
	"relive.org/internal/ids"
	"relive.org/internal/relief"
)

// deadlineExpr is the SQL form of Opportunity.Deadline: date plus time,
// with the time defaulting to end of day.
const deadlineExpr = `(o.date_needed + coalesce(o.time_needed, time '23:59:59'))`

// urgencyRankExpr orders listings Urgent-first, mirroring Urgency.Rank.
const urgencyRankExpr = `case urgency_level when 'Urgent' then 1 when 'High' then 2 when 'Medium' then 3 else 4 end`

// Store implements relief.Service on PostgreSQL. Multi-row mutations run in
// a single transaction with the affected request/opportunity row locked
// before any precondition is evaluated.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ relief.Service = (*Store)(nil)

// Open connects to the database and configures the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db), nil
}

// NewStore wraps an existing pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock overrides the time source (useful for tests).
func (s *Store) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool for components that share it (auth store,
// audit store, readiness probe).
func (s *Store) DB() *sql.DB { return s.db }

// --- profiles -------------------------------------------------------------

func profileTable(role auth.Role) string {
	switch role {
	case auth.RoleDonor:
		return "donors"
	case auth.RoleVolunteer:
		return "volunteers"
	case auth.RoleShelter:
		return "shelters"
	default:
		return ""
	}
}

func (s *Store) EnsureProfile(ctx context.Context, userID string, role auth.Role, name, email string) (relief.Profile, error) {
	table := profileTable(role)
	if table == "" {
		return relief.Profile{}, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`insert into `+table+`(id, user_id, name, email) values($1,$2,$3,$4)
		 on conflict (user_id) do nothing`,
		ids.New(), userID, name, email,
	); err != nil {
		return relief.Profile{}, err
	}
	var p relief.Profile
	err := s.db.QueryRowContext(ctx,
		`select id, user_id, name, email from `+table+` where user_id=$1`, userID,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return relief.Profile{}, relief.ErrProfileNotFound
	}
	if err != nil {
		return relief.Profile{}, err
	}
	return p, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func resolveProfile(ctx context.Context, q querier, role auth.Role, userID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `select id from `+profileTable(role)+` where user_id=$1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", relief.ErrProfileNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// --- requests -------------------------------------------------------------

func (s *Store) CreateRequest(ctx context.Context, shelterUserID string, in relief.RequestInput) (relief.Request, error) {
	if in.Quantity <= 0 {
		return relief.Request{}, relief.ErrInvalidQuantity
	}
	shelterID, err := resolveProfile(ctx, s.db, auth.RoleShelter, shelterUserID)
	if err != nil {
		return relief.Request{}, err
	}
	req := relief.Request{
		ID:          ids.New(),
		ShelterID:   shelterID,
		Type:        in.Type,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		Urgency:     in.Urgency,
		Status:      relief.RequestOpen,
		Description: in.Description,
		RequestedAt: s.now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		insert into requests(id, shelter_id, request_type, quantity, unit, urgency_level, status, description, requested_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, req.ID, req.ShelterID, req.Type, req.Quantity, req.Unit, string(req.Urgency), string(req.Status), req.Description, req.RequestedAt)
	if err != nil {
		return relief.Request{}, err
	}
	return req, nil
}

func (s *Store) DeleteRequest(ctx context.Context, shelterUserID, requestID string) error {
	shelterID, err := resolveProfile(ctx, s.db, auth.RoleShelter, shelterUserID)
	if err != nil {
		return err
	}
	// Matches cascade through the FK. Ownership misses look identical to
	// missing rows so callers cannot probe foreign requests.
	res, err := s.db.ExecContext(ctx,
		`delete from requests where id=$1 and shelter_id=$2`, requestID, shelterID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return relief.ErrNotFound
	}
	return nil
}

const requestColumns = `id, shelter_id, request_type, quantity, unit, urgency_level, status, coalesce(description,''), requested_at`

func scanRequest(row interface{ Scan(...any) error }) (relief.Request, error) {
	var req relief.Request
	var urgency, status string
	if err := row.Scan(&req.ID, &req.ShelterID, &req.Type, &req.Quantity, &req.Unit, &urgency, &status, &req.Description, &req.RequestedAt); err != nil {
		return relief.Request{}, err
	}
	req.Urgency = relief.Urgency(urgency)
	req.Status = relief.RequestStatus(status)
	return req, nil
}

func (s *Store) ListOpenRequests(ctx context.Context) ([]relief.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+requestColumns+` from requests
		where status <> 'Fulfilled'
		order by `+urgencyRankExpr+`, requested_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *Store) ListShelterRequests(ctx context.Context, shelterUserID string) ([]relief.Request, error) {
	shelterID, err := resolveProfile(ctx, s.db, auth.RoleShelter, shelterUserID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+requestColumns+` from requests
		where shelter_id=$1
		order by requested_at desc
	`, shelterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]relief.Request, error) {
	var res []relief.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// --- fulfillment ----------------------------------------------------------

func (s *Store) Fulfill(ctx context.Context, donorUserID string, in relief.FulfillmentInput) (relief.FulfillmentResult, error) {
	if in.Quantity <= 0 {
		return relief.FulfillmentResult{}, relief.ErrInvalidQuantity
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relief.FulfillmentResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	donorID, err := resolveProfile(ctx, tx, auth.RoleDonor, donorUserID)
	if err != nil {
		return relief.FulfillmentResult{}, err
	}

	var req *relief.Request
	if in.RequestID != "" {
		// Lock the request before evaluating status and quantity so two
		// concurrent fulfillments cannot both see it as still open.
		row := tx.QueryRowContext(ctx, `
			select `+requestColumns+` from requests where id=$1 for update
		`, in.RequestID)
		loaded, err := scanRequest(row)
		if errors.Is(err, sql.ErrNoRows) {
			return relief.FulfillmentResult{}, relief.ErrNotFound
		}
		if err != nil {
			return relief.FulfillmentResult{}, err
		}
		if err := relief.ApplyFulfillment(&loaded, in.Quantity, in.Unit); err != nil {
			return relief.FulfillmentResult{}, err
		}
		req = &loaded
	}

	donationID := ids.New()
	now := s.now().UTC()
	var shelterID any
	if req != nil {
		shelterID = req.ShelterID
	}
	if _, err := tx.ExecContext(ctx, `
		insert into donations(id, donor_id, shelter_id, food_type, quantity, expiry_date, location, notes, status, donated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, donationID, donorID, shelterID, in.FoodType, relief.FormatQuantity(in.Quantity, in.Unit),
		in.ExpiryDate, in.PickupLocation, in.Notes, string(relief.DonationPending), now); err != nil {
		return relief.FulfillmentResult{}, err
	}

	result := relief.FulfillmentResult{DonationID: donationID}
	if req != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into matches(id, donation_id, request_id, matched_on, status)
			values ($1,$2,$3,$4,'Pending')
		`, ids.New(), donationID, req.ID, now); err != nil {
			return relief.FulfillmentResult{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			update requests set quantity=$2, status=$3 where id=$1
		`, req.ID, req.Quantity, string(req.Status)); err != nil {
			return relief.FulfillmentResult{}, err
		}
		result.RequestStatus = req.Status
		result.RemainingQuantity = req.Quantity
	}

	if err := tx.Commit(); err != nil {
		return relief.FulfillmentResult{}, err
	}
	return result, nil
}

func (s *Store) ListDonorDonations(ctx context.Context, donorUserID string) ([]relief.Donation, error) {
	donorID, err := resolveProfile(ctx, s.db, auth.RoleDonor, donorUserID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select d.id, d.donor_id, coalesce(d.shelter_id,''), d.food_type, d.quantity,
		       d.expiry_date, coalesce(d.location,''), coalesce(d.notes,''), d.status, d.donated_at,
		       coalesce(sh.name,'')
		from donations d
		left join shelters sh on sh.id = d.shelter_id
		where d.donor_id=$1
		order by d.donated_at desc
	`, donorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []relief.Donation
	for rows.Next() {
		var d relief.Donation
		var expiry sql.NullTime
		var status string
		if err := rows.Scan(&d.ID, &d.DonorID, &d.ShelterID, &d.FoodType, &d.Quantity,
			&expiry, &d.Location, &d.Notes, &status, &d.DonatedAt, &d.ShelterName); err != nil {
			return nil, err
		}
		if expiry.Valid {
			t := expiry.Time
			d.ExpiryDate = &t
		}
		d.Status = relief.DonationStatus(status)
		res = append(res, d)
	}
	return res, rows.Err()
}

func (s *Store) DeleteDonation(ctx context.Context, donorUserID, donationID string) error {
	donorID, err := resolveProfile(ctx, s.db, auth.RoleDonor, donorUserID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx,
		`select status from donations where id=$1 and donor_id=$2 for update`,
		donationID, donorID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return relief.ErrNotFound
	}
	if err != nil {
		return err
	}
	if relief.DonationStatus(status) != relief.DonationPending {
		return relief.ErrNotPending
	}
	if _, err := tx.ExecContext(ctx, `delete from donations where id=$1`, donationID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- opportunities --------------------------------------------------------

func (s *Store) CreateOpportunity(ctx context.Context, shelterUserID string, in relief.OpportunityInput) (relief.Opportunity, error) {
	shelterID, err := resolveProfile(ctx, s.db, auth.RoleShelter, shelterUserID)
	if err != nil {
		return relief.Opportunity{}, err
	}
	needed := in.VolunteersNeeded
	if needed < 1 {
		needed = 1
	}
	opp := relief.Opportunity{
		ID:                 ids.New(),
		ShelterID:          shelterID,
		Title:              in.Title,
		Description:        in.Description,
		TaskType:           in.TaskType,
		VolunteersNeeded:   needed,
		DateNeeded:         in.DateNeeded,
		TimeNeeded:         in.TimeNeeded,
		DurationHours:      in.DurationHours,
		Location:           in.Location,
		Urgency:            in.Urgency,
		Status:             relief.OpportunityOpen,
		CreatedAt:          s.now().UTC(),
	}
	var timeNeeded any
	if opp.TimeNeeded != "" {
		timeNeeded = opp.TimeNeeded
	}
	_, err = s.db.ExecContext(ctx, `
		insert into volunteer_opportunities(
			id, shelter_id, title, description, task_type, volunteers_needed, volunteers_assigned,
			date_needed, time_needed, duration_hours, location, urgency_level, status, created_at)
		values ($1,$2,$3,$4,$5,$6,0,$7,$8,$9,$10,$11,$12,$13)
	`, opp.ID, opp.ShelterID, opp.Title, opp.Description, opp.TaskType, opp.VolunteersNeeded,
		opp.DateNeeded, timeNeeded, opp.DurationHours, opp.Location, string(opp.Urgency), string(opp.Status), opp.CreatedAt)
	if err != nil {
		return relief.Opportunity{}, err
	}
	return opp, nil
}

func (s *Store) DeleteOpportunity(ctx context.Context, shelterUserID, opportunityID string) error {
	shelterID, err := resolveProfile(ctx, s.db, auth.RoleShelter, shelterUserID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`delete from volunteer_opportunities where id=$1 and shelter_id=$2`, opportunityID, shelterID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return relief.ErrNotFound
	}
	return nil
}

const opportunityColumns = `o.id, o.shelter_id, o.title, coalesce(o.description,''), coalesce(o.task_type,''),
	o.volunteers_needed, o.volunteers_assigned, o.date_needed, o.time_needed::text,
	coalesce(o.duration_hours,0), coalesce(o.location,''), o.urgency_level, o.status, o.created_at`

func scanOpportunity(row interface{ Scan(...any) error }) (relief.Opportunity, error) {
	var opp relief.Opportunity
	var date sql.NullTime
	var timeNeeded sql.NullString
	var urgency, status string
	if err := row.Scan(&opp.ID, &opp.ShelterID, &opp.Title, &opp.Description, &opp.TaskType,
		&opp.VolunteersNeeded, &opp.VolunteersAssigned, &date, &timeNeeded,
		&opp.DurationHours, &opp.Location, &urgency, &status, &opp.CreatedAt); err != nil {
		return relief.Opportunity{}, err
	}
	if date.Valid {
		d := date.Time
		opp.DateNeeded = &d
	}
	opp.TimeNeeded = timeNeeded.String
	opp.Urgency = relief.Urgency(urgency)
	opp.Status = relief.OpportunityStatus(status)
	return opp, nil
}

func (s *Store) ListVisibleOpportunities(ctx context.Context) ([]relief.Opportunity, error) {
	// Idempotent cleanup: complete assignments whose opportunity has passed
	// its scheduled moment before listing.
	if err := s.completeElapsedAssignments(ctx, ""); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+opportunityColumns+`
		from volunteer_opportunities o
		where o.date_needed is null or `+deadlineExpr+` >= now()
		order by case o.urgency_level when 'Urgent' then 1 when 'High' then 2 when 'Medium' then 3 else 4 end,
		         `+deadlineExpr+` asc nulls last, o.created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []relief.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, opp)
	}
	return res, rows.Err()
}

func (s *Store) Apply(ctx context.Context, volunteerUserID, opportunityID string) (relief.ApplicationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relief.ApplicationResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	volunteerID, err := resolveProfile(ctx, tx, auth.RoleVolunteer, volunteerUserID)
	if err != nil {
		return relief.ApplicationResult{}, err
	}

	// Lock the opportunity before the capacity check so two concurrent
	// applications cannot both claim the last slot.
	row := tx.QueryRowContext(ctx, `
		select `+opportunityColumns+` from volunteer_opportunities o where o.id=$1 for update
	`, opportunityID)
	opp, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return relief.ApplicationResult{}, relief.ErrNotFound
	}
	if err != nil {
		return relief.ApplicationResult{}, err
	}
	if opp.Status != relief.OpportunityOpen {
		return relief.ApplicationResult{}, relief.ErrNotOpen
	}
	if opp.VolunteersAssigned >= opp.VolunteersNeeded {
		return relief.ApplicationResult{}, relief.ErrAlreadyFull
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		`select 1 from volunteer_assignments where opportunity_id=$1 and volunteer_id=$2`,
		opportunityID, volunteerID).Scan(&exists)
	if err == nil {
		return relief.ApplicationResult{}, relief.ErrAlreadyApplied
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return relief.ApplicationResult{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into volunteer_assignments(id, opportunity_id, volunteer_id, assigned_at, status)
		values ($1,$2,$3,$4,$5)
	`, ids.New(), opportunityID, volunteerID, s.now().UTC(), string(relief.AssignmentAssigned)); err != nil {
		return relief.ApplicationResult{}, err
	}

	assigned := opp.VolunteersAssigned + 1
	status := relief.OpportunityOpen
	if assigned >= opp.VolunteersNeeded {
		status = relief.OpportunityFilled
	}
	if _, err := tx.ExecContext(ctx, `
		update volunteer_opportunities set volunteers_assigned=$2, status=$3 where id=$1
	`, opportunityID, assigned, string(status)); err != nil {
		return relief.ApplicationResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return relief.ApplicationResult{}, err
	}
	return relief.ApplicationResult{VolunteersAssigned: assigned, Status: status}, nil
}

func (s *Store) VolunteerTasks(ctx context.Context, volunteerUserID string) ([]relief.Assignment, error) {
	volunteerID, err := resolveProfile(ctx, s.db, auth.RoleVolunteer, volunteerUserID)
	if err != nil {
		return nil, err
	}
	if err := s.completeElapsedAssignments(ctx, volunteerID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.opportunity_id, a.volunteer_id, a.assigned_at, a.status,
		       o.title, coalesce(o.task_type,''), o.date_needed, o.time_needed::text
		from volunteer_assignments a
		join volunteer_opportunities o on o.id = a.opportunity_id
		where a.volunteer_id=$1
		order by a.assigned_at desc
	`, volunteerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []relief.Assignment
	for rows.Next() {
		var a relief.Assignment
		var status string
		var date sql.NullTime
		var timeNeeded sql.NullString
		if err := rows.Scan(&a.ID, &a.OpportunityID, &a.VolunteerID, &a.AssignedAt, &status,
			&a.Title, &a.TaskType, &date, &timeNeeded); err != nil {
			return nil, err
		}
		a.Status = relief.AssignmentStatus(status)
		if date.Valid {
			d := date.Time
			a.DateNeeded = &d
		}
		a.TimeNeeded = timeNeeded.String
		res = append(res, a)
	}
	return res, rows.Err()
}

// completeElapsedAssignments flips Assigned assignments to Completed once
// their opportunity's scheduled moment has passed. Repeated evaluation is a
// no-op; an empty volunteerID sweeps all volunteers.
func (s *Store) completeElapsedAssignments(ctx context.Context, volunteerID string) error {
	query := `
		update volunteer_assignments a set status='Completed'
		from volunteer_opportunities o
		where a.opportunity_id = o.id
		  and a.status = 'Assigned'
		  and o.date_needed is not null
		  and ` + deadlineExpr + ` < now()`
	var err error
	if volunteerID == "" {
		_, err = s.db.ExecContext(ctx, query)
	} else {
		_, err = s.db.ExecContext(ctx, query+` and a.volunteer_id=$1`, volunteerID)
	}
	return err
}
