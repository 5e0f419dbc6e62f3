package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/healthbridge/triageflow/internal/models"
)

// sessionRow is the flat column set shared by both SQL backends.
const sessionColumns = `id, user_key, stage, language, age, gender, triage_data, provider_data, booking_ref, created_at, updated_at`

// marshalSessionData serializes the JSON columns of a session.
func marshalSessionData(sess models.Session) (triage string, provider interface{}, err error) {
	triageBytes, err := json.Marshal(sess.Triage)
	if err != nil {
		return "", nil, fmt.Errorf("marshal triage data: %w", err)
	}
	if sess.Provider == nil {
		return string(triageBytes), nil, nil
	}
	providerBytes, err := json.Marshal(sess.Provider)
	if err != nil {
		return "", nil, fmt.Errorf("marshal provider data: %w", err)
	}
	return string(triageBytes), string(providerBytes), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSession scans one session record from a row in sessionColumns order.
func scanSession(row rowScanner) (models.Session, error) {
	var sess models.Session
	var age sql.NullInt64
	var triageJSON string
	var providerJSON sql.NullString
	err := row.Scan(
		&sess.ID, &sess.UserKey, &sess.Stage, &sess.Language, &age, &sess.Demographics.Gender,
		&triageJSON, &providerJSON, &sess.BookingRef, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return sess, err
	}
	if age.Valid {
		n := int(age.Int64)
		sess.Demographics.Age = &n
	}
	if triageJSON != "" {
		if err := json.Unmarshal([]byte(triageJSON), &sess.Triage); err != nil {
			return sess, fmt.Errorf("unmarshal triage data: %w", err)
		}
	}
	if providerJSON.Valid && providerJSON.String != "" {
		var ref models.ProviderRef
		if err := json.Unmarshal([]byte(providerJSON.String), &ref); err != nil {
			return sess, fmt.Errorf("unmarshal provider data: %w", err)
		}
		sess.Provider = &ref
	}
	return sess, nil
}

// nullableAge converts demographics age to a nullable column value.
func nullableAge(age *int) interface{} {
	if age == nil {
		return nil
	}
	return *age
}

// marshalMetadata serializes interaction metadata, nil for empty maps.
func marshalMetadata(meta map[string]string) (interface{}, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal interaction metadata: %w", err)
	}
	return string(b), nil
}

// scanInteraction scans one interaction record.
func scanInteraction(rows *sql.Rows) (models.InteractionRecord, error) {
	var rec models.InteractionRecord
	var metaJSON sql.NullString
	err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Direction, &rec.Kind, &rec.Content, &metaJSON, &rec.Timestamp)
	if err != nil {
		return rec, fmt.Errorf("scan interaction row: %w", err)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		rec.Metadata = make(map[string]string)
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
			return rec, fmt.Errorf("unmarshal interaction metadata: %w", err)
		}
	}
	return rec, nil
}
