package profilepg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tyemirov/idbridge/internal/profile"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	duplicate := &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "idx_user_profiles_subject"}
	if !isUniqueViolation(duplicate) {
		t.Fatalf("expected a 23505 PgError to count as a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("scan: %w", duplicate)) {
		t.Fatalf("expected a wrapped 23505 PgError to count as a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected a foreign-key violation not to count")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Fatalf("expected a plain error not to count")
	}
}

func TestMergePatchFillsOnlyEmptyColumns(t *testing.T) {
	t.Parallel()

	existing := &profile.Record{
		ID:          "rec-1",
		Email:       "old@example.com",
		SubjectID:   "sub-1",
		DisplayName: "Kept Name",
	}
	incoming := &profile.Record{
		Email:       "new@example.com",
		SubjectID:   "sub-1",
		DisplayName: "Ignored Name",
		FirstName:   "Filled",
		PictureURL:  "https://photos.example/p.png",
	}

	patch := mergePatch(existing, incoming)
	if _, present := patch[profile.FieldDisplayName]; present {
		t.Fatalf("expected populated display_name to be left alone, got patch %+v", patch)
	}
	if patch[profile.FieldFirstName] != "Filled" {
		t.Fatalf("expected empty first_name to be filled, got patch %+v", patch)
	}
	if patch[profile.FieldPictureURL] != "https://photos.example/p.png" {
		t.Fatalf("expected empty picture_url to be filled, got patch %+v", patch)
	}
	if _, present := patch[profile.FieldSubjectID]; present {
		t.Fatalf("expected populated subject_id to be left alone, got patch %+v", patch)
	}
}

func TestMergePatchEmptyWhenRecordComplete(t *testing.T) {
	t.Parallel()

	full := &profile.Record{
		SubjectID:   "sub-2",
		DisplayName: "Full",
		FirstName:   "F",
		LastName:    "L",
		PictureURL:  "https://photos.example/f.png",
	}
	if patch := mergePatch(full, full); len(patch) != 0 {
		t.Fatalf("expected no patch for a fully populated record, got %+v", patch)
	}
}
