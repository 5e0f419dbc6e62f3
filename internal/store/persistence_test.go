package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/healthbridge/triageflow/internal/models"
)

// TestSQLiteSessionSurvivesReopen simulates a restart: a session is written,
// the store is closed, a fresh store opens the same file, and the session is
// still there with its accumulated triage data.
func TestSQLiteSessionSurvivesReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "triage_store_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)
	dbPath := filepath.Join(tempDir, "test.db")

	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 1) failed: %v", err)
	}

	sess, err := s1.GetOrCreateSession("2348012345678")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	stage := models.StageCollectingSymptoms
	lang := "pcm"
	age := 34
	gender := "female"
	updated, err := s1.UpdateSession(sess, models.SessionPatch{
		Stage:       &stage,
		Language:    &lang,
		Age:         &age,
		Gender:      &gender,
		AddSymptoms: []string{"fever", "headache"},
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if _, err := s1.RecordInbound("wamid.abc", "2348012345678", sess.ID, "{}"); err != nil {
		t.Fatalf("RecordInbound failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 2) failed: %v", err)
	}
	defer s2.Close()

	loaded, err := s2.GetSession("2348012345678")
	if err != nil {
		t.Fatalf("GetSession after reopen failed: %v", err)
	}
	if loaded.ID != sess.ID {
		t.Errorf("session identity changed across reopen: %s vs %s", loaded.ID, sess.ID)
	}
	if loaded.Stage != stage || loaded.Language != lang {
		t.Errorf("stage/language not persisted: %+v", loaded)
	}
	if loaded.Demographics.Age == nil || *loaded.Demographics.Age != age {
		t.Errorf("age not persisted: %v", loaded.Demographics.Age)
	}
	if loaded.Demographics.Gender != gender {
		t.Errorf("gender not persisted: %q", loaded.Demographics.Gender)
	}
	if len(loaded.Triage.Symptoms) != 2 {
		t.Errorf("symptoms not persisted: %v", loaded.Triage.Symptoms)
	}
	if !loaded.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Errorf("updated_at drifted across reopen: %v vs %v", loaded.UpdatedAt, updated.UpdatedAt)
	}

	// Dedup records survive too, so a channel retry after restart stays a no-op.
	dup, err := s2.IsDuplicate("wamid.abc", "2348012345678")
	if err != nil || !dup {
		t.Errorf("expected persisted dedup record, got dup=%v err=%v", dup, err)
	}
}

func TestSQLiteUpdateSessionConflict(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "triage_store_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	sess, err := s.GetOrCreateSession("2348012345678")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	stage := models.StageLanguageSelection
	if _, err := s.UpdateSession(sess, models.SessionPatch{Stage: &stage}); err != nil {
		t.Fatalf("first UpdateSession failed: %v", err)
	}

	next := models.StageCollectingDemographics
	_, err = s.UpdateSession(sess, models.SessionPatch{Stage: &next})
	if !errors.Is(err, models.ErrSessionConflict) {
		t.Errorf("expected ErrSessionConflict for stale update, got %v", err)
	}
}

func TestSQLiteConcurrentCreateKeepsOneRecord(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "triage_store_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	first, err := s.GetOrCreateSession("2348012345678")
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	second, err := s.GetOrCreateSession("2348012345678")
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected one surviving record, got ids %s and %s", first.ID, second.ID)
	}
}
