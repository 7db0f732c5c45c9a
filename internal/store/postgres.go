// Package store provides the call registry and roster implementations used by
// the dispatch coordinator.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fire/command/internal/dispatch"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const callNumberConstraint = "emergency_calls_call_number_key"

const callColumns = `
	id::text,
	call_number,
	caller_name,
	caller_phone,
	incident_address,
	latitude,
	longitude,
	incident_type,
	priority,
	description,
	status,
	received_at,
	dispatched_at,
	en_route_at,
	arrived_at,
	cleared_at,
	cancelled_at,
	updated_at,
	assigned_station_id,
	firefighter_ids,
	responder_latitude,
	responder_longitude,
	responder_reported_at,
	version`

// Postgres stores calls and the roster in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Save inserts version 1 of a call or updates it guarded by the previous version.
func (p *Postgres) Save(ctx context.Context, call dispatch.Call) error {
	if call.Version == 1 {
		return p.insert(ctx, call)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE emergency_calls SET
			priority = $2,
			status = $3,
			dispatched_at = $4,
			en_route_at = $5,
			arrived_at = $6,
			cleared_at = $7,
			cancelled_at = $8,
			updated_at = $9,
			assigned_station_id = $10,
			firefighter_ids = $11,
			responder_latitude = $12,
			responder_longitude = $13,
			responder_reported_at = $14,
			version = $15
		WHERE id = $1::uuid AND version = $15 - 1 AND call_number = $16`,
		call.ID,
		string(call.Priority),
		string(call.Status),
		call.DispatchedAt,
		call.EnRouteAt,
		call.ArrivedAt,
		call.ClearedAt,
		call.CancelledAt,
		call.UpdatedAt,
		call.AssignedStationID,
		firefighterIDs(call.FirefighterIDs),
		call.ResponderLatitude,
		call.ResponderLongitude,
		call.ResponderReportedAt,
		call.Version,
		call.CallNumber,
	)
	if err != nil {
		return fmt.Errorf("updating call %s: %w", call.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: call %s is not at version %d", dispatch.ErrConflict, call.ID, call.Version-1)
	}
	return nil
}

func (p *Postgres) insert(ctx context.Context, call dispatch.Call) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO emergency_calls (
			id, call_number, caller_name, caller_phone, incident_address,
			latitude, longitude, incident_type, priority, description,
			status, received_at, updated_at, firefighter_ids, version
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		call.ID,
		call.CallNumber,
		call.CallerName,
		call.CallerPhone,
		call.IncidentAddress,
		call.Latitude,
		call.Longitude,
		string(call.IncidentType),
		string(call.Priority),
		call.Description,
		string(call.Status),
		call.ReceivedAt,
		call.UpdatedAt,
		firefighterIDs(call.FirefighterIDs),
		call.Version,
	)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == callNumberConstraint {
			return fmt.Errorf("%w: %s", dispatch.ErrDuplicateCallNumber, call.CallNumber)
		}
		return fmt.Errorf("%w: call %s already exists", dispatch.ErrConflict, call.ID)
	}
	return fmt.Errorf("inserting call %s: %w", call.ID, err)
}

func (p *Postgres) Load(ctx context.Context, id string) (dispatch.Call, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM emergency_calls WHERE id = $1::uuid`, id)
	call, err := scanCall(row)
	if err != nil {
		if isNotFound(err) {
			return dispatch.Call{}, fmt.Errorf("%w: call %s", dispatch.ErrNotFound, id)
		}
		return dispatch.Call{}, fmt.Errorf("loading call %s: %w", id, err)
	}
	return call, nil
}

func (p *Postgres) LoadByNumber(ctx context.Context, number string) (dispatch.Call, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM emergency_calls WHERE call_number = $1`, number)
	call, err := scanCall(row)
	if err != nil {
		if isNotFound(err) {
			return dispatch.Call{}, fmt.Errorf("%w: call number %s", dispatch.ErrNotFound, number)
		}
		return dispatch.Call{}, fmt.Errorf("loading call %s: %w", number, err)
	}
	return call, nil
}

func (p *Postgres) List(ctx context.Context, filter dispatch.CallFilter) ([]dispatch.Call, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if filter.From != nil {
		where = append(where, "received_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "received_at <= "+arg(*filter.To))
	}
	if filter.StationID != nil {
		where = append(where, "assigned_station_id = "+arg(*filter.StationID))
	}

	query := `SELECT ` + callColumns + ` FROM emergency_calls`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY received_at DESC, call_number DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	out := make([]dispatch.Call, 0)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning call: %w", err)
		}
		out = append(out, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing calls: %w", err)
	}
	return out, nil
}

func (p *Postgres) CountByStatus(ctx context.Context) (map[dispatch.Status]int, error) {
	rows, err := p.pool.Query(ctx, `SELECT status, count(*) FROM emergency_calls GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting calls: %w", err)
	}
	defer rows.Close()

	counts := make(map[dispatch.Status]int, len(dispatch.Statuses))
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[dispatch.Status(status)] = int(n)
	}
	return counts, rows.Err()
}

func (p *Postgres) Stations(ctx context.Context) ([]dispatch.Station, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, station_code, station_name, address, station_type,
		       latitude, longitude, capacity, standard_crew, is_active
		FROM fire_stations
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Station
	for rows.Next() {
		var (
			st  dispatch.Station
			typ string
		)
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Address, &typ,
			&st.Latitude, &st.Longitude, &st.Capacity, &st.StandardCrew, &st.Active); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		st.Type = dispatch.StationType(typ)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (p *Postgres) Firefighters(ctx context.Context) ([]dispatch.Firefighter, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, full_name, rank, station_id, on_duty
		FROM firefighters
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing firefighters: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Firefighter
	for rows.Next() {
		var (
			ff     dispatch.Firefighter
			onDuty bool
		)
		if err := rows.Scan(&ff.ID, &ff.Name, &ff.Rank, &ff.StationID, &onDuty); err != nil {
			return nil, fmt.Errorf("scanning firefighter: %w", err)
		}
		ff.Availability = dispatch.OffDuty
		if onDuty {
			ff.Availability = dispatch.Available
		}
		out = append(out, ff)
	}
	return out, rows.Err()
}

func (p *Postgres) SetFirefighterDuty(ctx context.Context, id int64, onDuty bool) error {
	tag, err := p.pool.Exec(ctx, `UPDATE firefighters SET on_duty = $2 WHERE id = $1`, id, onDuty)
	if err != nil {
		return fmt.Errorf("updating firefighter %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: firefighter %d", dispatch.ErrNotFound, id)
	}
	return nil
}

func scanCall(row pgx.Row) (dispatch.Call, error) {
	var (
		c                              dispatch.Call
		incidentType, priority, status string
		ffIDs                          []int64
	)
	err := row.Scan(
		&c.ID,
		&c.CallNumber,
		&c.CallerName,
		&c.CallerPhone,
		&c.IncidentAddress,
		&c.Latitude,
		&c.Longitude,
		&incidentType,
		&priority,
		&c.Description,
		&status,
		&c.ReceivedAt,
		&c.DispatchedAt,
		&c.EnRouteAt,
		&c.ArrivedAt,
		&c.ClearedAt,
		&c.CancelledAt,
		&c.UpdatedAt,
		&c.AssignedStationID,
		&ffIDs,
		&c.ResponderLatitude,
		&c.ResponderLongitude,
		&c.ResponderReportedAt,
		&c.Version,
	)
	if err != nil {
		return dispatch.Call{}, err
	}
	c.IncidentType = dispatch.IncidentType(incidentType)
	c.Priority = dispatch.Priority(priority)
	c.Status = dispatch.Status(status)
	if len(ffIDs) > 0 {
		c.FirefighterIDs = ffIDs
	}
	c.ReceivedAt = c.ReceivedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	for _, ts := range []*time.Time{c.DispatchedAt, c.EnRouteAt, c.ArrivedAt, c.ClearedAt, c.CancelledAt, c.ResponderReportedAt} {
		if ts != nil {
			*ts = ts.UTC()
		}
	}
	return c, nil
}

func firefighterIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
