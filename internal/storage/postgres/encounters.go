package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hollowhost/hollowhost/internal/game/encounter"
	"github.com/hollowhost/hollowhost/internal/session"
)

// ErrEncounterNotFound is returned when an encounter lookup yields no results.
var ErrEncounterNotFound = errors.New("encounter not found")

// ErrEncounterExists is returned when archiving an encounter ID that has
// already been archived.
var ErrEncounterExists = errors.New("encounter already archived")

// EncounterRepository persists finished encounters and their event logs.
// It implements session.Archiver.
type EncounterRepository struct {
	db *pgxpool.Pool
}

// NewEncounterRepository creates an EncounterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewEncounterRepository(db *pgxpool.Pool) *EncounterRepository {
	return &EncounterRepository{db: db}
}

// Archive writes a finished encounter, its complete event log, and the final
// combatant states in a single transaction.
//
// Precondition: rec.EncounterID must be non-empty; rec.Events must be the
// full log in sequence order.
// Postcondition: Either all rows are written or none are. Returns
// ErrEncounterExists if the encounter ID was already archived.
func (r *EncounterRepository) Archive(ctx context.Context, rec *session.Record) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO encounters (id, ruleset_id, winner, rounds)
		VALUES ($1, $2, $3, $4)`,
		rec.EncounterID, rec.RulesetID, rec.Winner, rec.Rounds,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrEncounterExists
		}
		return fmt.Errorf("inserting encounter: %w", err)
	}

	for _, ev := range rec.Events {
		_, err = tx.Exec(ctx, `
			INSERT INTO encounter_events (encounter_id, seq, kind, round, actor, target, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.EncounterID, ev.Seq, string(ev.Kind), ev.Round, ev.Actor, ev.Target, []byte(ev.Payload),
		)
		if err != nil {
			return fmt.Errorf("inserting event seq %d: %w", ev.Seq, err)
		}
	}

	for _, c := range rec.Combatants {
		_, err = tx.Exec(ctx, `
			INSERT INTO encounter_combatants
				(encounter_id, combatant_id, name, side, hp, max_hp, initiative, defeated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.EncounterID, c.ID, c.Name, c.Side, c.HP, c.MaxHP, c.Initiative, c.Defeated,
		)
		if err != nil {
			return fmt.Errorf("inserting combatant %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing archive transaction: %w", err)
	}
	return nil
}

// GetRecord retrieves an archived encounter with its combatants and full
// event log.
//
// Precondition: id must be non-empty.
// Postcondition: Returns the Record or ErrEncounterNotFound.
func (r *EncounterRepository) GetRecord(ctx context.Context, id string) (*session.Record, error) {
	var rec session.Record
	err := r.db.QueryRow(ctx, `
		SELECT id, ruleset_id, winner, rounds
		FROM encounters WHERE id = $1`,
		id,
	).Scan(&rec.EncounterID, &rec.RulesetID, &rec.Winner, &rec.Rounds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEncounterNotFound
		}
		return nil, fmt.Errorf("querying encounter: %w", err)
	}

	rec.Events, err = r.GetEvents(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT combatant_id, name, side, hp, max_hp, initiative, defeated
		FROM encounter_combatants WHERE encounter_id = $1 ORDER BY combatant_id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing combatants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c session.CombatantRecord
		if err := rows.Scan(&c.ID, &c.Name, &c.Side, &c.HP, &c.MaxHP, &c.Initiative, &c.Defeated); err != nil {
			return nil, fmt.Errorf("scanning combatant row: %w", err)
		}
		rec.Combatants = append(rec.Combatants, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetEvents returns the archived event log for an encounter, in sequence
// order, starting after the given sequence number. Pass since=0 for the
// full log. The returned events are suitable for encounter.Replay.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *EncounterRepository) GetEvents(ctx context.Context, id string, since uint64) ([]encounter.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT seq, kind, round, actor, target, payload
		FROM encounter_events WHERE encounter_id = $1 AND seq > $2 ORDER BY seq ASC`,
		id, since,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := make([]encounter.Event, 0)
	for rows.Next() {
		var ev encounter.Event
		var kind string
		var payload []byte
		if err := rows.Scan(&ev.Seq, &kind, &ev.Round, &ev.Actor, &ev.Target, &payload); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		ev.Kind = encounter.EventKind(kind)
		ev.Payload = payload
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListRecent returns summaries of the most recently archived encounters,
// newest first.
//
// Precondition: limit must be > 0.
func (r *EncounterRepository) ListRecent(ctx context.Context, limit int) ([]*session.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, ruleset_id, winner, rounds
		FROM encounters ORDER BY archived_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	defer rows.Close()

	recs := make([]*session.Record, 0)
	for rows.Next() {
		var rec session.Record
		if err := rows.Scan(&rec.EncounterID, &rec.RulesetID, &rec.Winner, &rec.Rounds); err != nil {
			return nil, fmt.Errorf("scanning encounter row: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
