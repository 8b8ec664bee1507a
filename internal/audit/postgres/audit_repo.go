// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres provides the PostgreSQL audit sink.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/audit"
)

// DB is the subset of pgxpool.Pool the sink uses.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AuditRepository appends audit entries to the audit_log table. Rows are
// never updated or deleted; there are deliberately no such methods.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Write implements audit.Sink.
func (r *AuditRepository) Write(ctx context.Context, entry audit.Entry) error {
	var actorID *string
	if entry.ActorID != nil {
		s := entry.ActorID.String()
		actorID = &s
	}

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return oops.Code("AUDIT_MARSHAL_FAILED").
				With("operation", "marshal details").
				With("action", string(entry.Action)).
				Wrap(err)
		}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		entry.ID.String(),
		actorID,
		string(entry.Action),
		details,
		entry.IP,
		entry.UserAgent,
		entry.At,
	)
	if err != nil {
		return oops.Code("AUDIT_WRITE_FAILED").
			With("operation", "insert audit entry").
			With("action", string(entry.Action)).
			Wrap(err)
	}
	return nil
}

// RecentForUser returns the latest entries where the user is the actor,
// newest first.
func (r *AuditRepository) RecentForUser(ctx context.Context, userID ulid.ULID, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, actor_id, action, details, ip_address, user_agent, created_at
		FROM audit_log
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, oops.Code("AUDIT_QUERY_FAILED").
			With("operation", "query audit entries").
			With("actor_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			idStr     string
			actorStr  *string
			action    string
			details   []byte
			ip        string
			userAgent string
			createdAt time.Time
		)
		if err := rows.Scan(&idStr, &actorStr, &action, &details, &ip, &userAgent, &createdAt); err != nil {
			return nil, oops.Code("AUDIT_SCAN_FAILED").
				With("operation", "scan audit row").
				Wrap(err)
		}

		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("AUDIT_INVALID_ID").
				With("id", idStr).
				Wrap(err)
		}

		entry := audit.Entry{
			ID:        id,
			Action:    audit.Action(action),
			IP:        ip,
			UserAgent: userAgent,
			At:        createdAt,
		}
		if actorStr != nil {
			actor, err := ulid.Parse(*actorStr)
			if err != nil {
				return nil, oops.Code("AUDIT_INVALID_ACTOR_ID").
					With("actor_id", *actorStr).
					Wrap(err)
			}
			entry.ActorID = &actor
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, oops.Code("AUDIT_UNMARSHAL_FAILED").
					With("operation", "unmarshal details").
					Wrap(err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_ROWS_ERROR").
			With("operation", "iterate audit rows").
			Wrap(err)
	}

	return entries, nil
}

// Compile-time interface check.
var _ audit.Sink = (*AuditRepository)(nil)
