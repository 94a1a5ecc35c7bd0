package profilepg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/idbridge/internal/profile"
)

const recordColumns = "id, email, subject_id, display_name, first_name, last_name, picture_url, birthday, phone"

// Store is a Postgres-backed profile store. Reconciliation goes through a
// single INSERT ... ON CONFLICT statement that fills only empty columns, so
// two concurrent sign-ins for the same email cannot clobber each other.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a Store onto an existing pool and ensures the schema.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("profilepg.nil_pool")
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("profilepg.schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// FindByKey locates a record by email or, failing that, by subject id.
func (store *Store) FindByKey(ctx context.Context, email string, subjectID string) (*profile.Record, error) {
	query := "SELECT " + recordColumns + " FROM user_profiles WHERE email = $1"
	arguments := []interface{}{email}
	if subjectID != "" {
		query += " OR subject_id = $2"
		arguments = append(arguments, subjectID)
	}
	query += " ORDER BY created_at LIMIT 1"

	row := store.pool.QueryRow(ctx, query, arguments...)
	record, scanErr := scanRecord(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("profilepg.find: %w", scanErr)
	}
	return record, nil
}

// Create inserts a new profile record, assigning an id when absent.
func (store *Store) Create(ctx context.Context, record *profile.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := store.pool.Exec(ctx, `
INSERT INTO user_profiles (id, email, subject_id, display_name, first_name, last_name, picture_url, birthday, phone)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, record.ID, record.Email, record.SubjectID, record.DisplayName, record.FirstName, record.LastName, record.PictureURL, record.Birthday, record.Phone)
	if err != nil {
		return fmt.Errorf("profilepg.create: %w", err)
	}
	return nil
}

// Update applies a field patch as a single write. Patch keys outside the
// known column set are rejected.
func (store *Store) Update(ctx context.Context, recordID string, patch profile.Patch) error {
	if len(patch) == 0 {
		return nil
	}
	assignments := make([]string, 0, len(patch))
	arguments := []interface{}{recordID}
	for field, value := range patch {
		if !isPatchableColumn(field) {
			return fmt.Errorf("profilepg.update: unknown field %q", field)
		}
		arguments = append(arguments, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", field, len(arguments)))
	}
	query := "UPDATE user_profiles SET " + strings.Join(assignments, ", ") + ", updated_at = now() WHERE id = $1"
	tag, err := store.pool.Exec(ctx, query, arguments...)
	if err != nil {
		return fmt.Errorf("profilepg.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profilepg.update: %w", profile.ErrRecordNotFound)
	}
	return nil
}

// MergeUpsert inserts the record or fills its empty columns in one atomic
// statement. The conditional DO UPDATE only fires when at least one column
// would actually change; when nothing changes the current row is fetched and
// reported as applied=false. The conflict target is the email index; a
// returning user whose email changed collides on the subject index instead,
// so that unique violation falls back to a find-and-patch merge.
func (store *Store) MergeUpsert(ctx context.Context, incoming *profile.Record) (*profile.Record, bool, error) {
	if incoming.ID == "" {
		incoming.ID = uuid.NewString()
	}
	row := store.pool.QueryRow(ctx, `
INSERT INTO user_profiles (id, email, subject_id, display_name, first_name, last_name, picture_url)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (email) DO UPDATE SET
    subject_id   = CASE WHEN user_profiles.subject_id   = '' THEN excluded.subject_id   ELSE user_profiles.subject_id   END,
    display_name = CASE WHEN user_profiles.display_name = '' THEN excluded.display_name ELSE user_profiles.display_name END,
    first_name   = CASE WHEN user_profiles.first_name   = '' THEN excluded.first_name   ELSE user_profiles.first_name   END,
    last_name    = CASE WHEN user_profiles.last_name    = '' THEN excluded.last_name    ELSE user_profiles.last_name    END,
    picture_url  = CASE WHEN user_profiles.picture_url  = '' THEN excluded.picture_url  ELSE user_profiles.picture_url  END,
    updated_at   = now()
WHERE (user_profiles.subject_id = '' AND excluded.subject_id <> '')
   OR (user_profiles.display_name = '' AND excluded.display_name <> '')
   OR (user_profiles.first_name = '' AND excluded.first_name <> '')
   OR (user_profiles.last_name = '' AND excluded.last_name <> '')
   OR (user_profiles.picture_url = '' AND excluded.picture_url <> '')
RETURNING `+recordColumns, incoming.ID, incoming.Email, incoming.SubjectID, incoming.DisplayName, incoming.FirstName, incoming.LastName, incoming.PictureURL)

	record, scanErr := scanRecord(row)
	if scanErr == nil {
		return record, true, nil
	}
	if isUniqueViolation(scanErr) {
		return store.mergeBySubject(ctx, incoming, scanErr)
	}
	if !errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("profilepg.merge_upsert: %w", scanErr)
	}

	// Conflict with nothing to fill: the existing row already wins on
	// every column.
	existing, findErr := store.FindByKey(ctx, incoming.Email, incoming.SubjectID)
	if findErr != nil {
		return nil, false, fmt.Errorf("profilepg.merge_upsert: %w", findErr)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("profilepg.merge_upsert: %w", profile.ErrRecordNotFound)
	}
	return existing, false, nil
}

// mergeBySubject handles the subject-index collision: the row matched on
// subject_id, not on the email conflict target, so the merge happens as a
// find plus a conditional patch instead.
func (store *Store) mergeBySubject(ctx context.Context, incoming *profile.Record, violation error) (*profile.Record, bool, error) {
	existing, findErr := store.FindByKey(ctx, incoming.Email, incoming.SubjectID)
	if findErr != nil {
		return nil, false, fmt.Errorf("profilepg.merge_by_subject: %w", findErr)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("profilepg.merge_by_subject: %w", violation)
	}
	patch := mergePatch(existing, incoming)
	if len(patch) == 0 {
		return existing, false, nil
	}
	if updateErr := store.Update(ctx, existing.ID, patch); updateErr != nil {
		return nil, false, fmt.Errorf("profilepg.merge_by_subject: %w", updateErr)
	}
	profile.ApplyPatch(existing, patch)
	return existing, true, nil
}

// mergePatch lists the columns empty on the stored record and populated on
// the incoming one.
func mergePatch(existing *profile.Record, incoming *profile.Record) profile.Patch {
	patch := profile.Patch{}
	pairs := []struct {
		field    string
		current  string
		incoming string
	}{
		{profile.FieldSubjectID, existing.SubjectID, incoming.SubjectID},
		{profile.FieldDisplayName, existing.DisplayName, incoming.DisplayName},
		{profile.FieldFirstName, existing.FirstName, incoming.FirstName},
		{profile.FieldLastName, existing.LastName, incoming.LastName},
		{profile.FieldPictureURL, existing.PictureURL, incoming.PictureURL},
	}
	for _, pair := range pairs {
		if strings.TrimSpace(pair.current) == "" && strings.TrimSpace(pair.incoming) != "" {
			patch[pair.field] = pair.incoming
		}
	}
	return patch
}

// Postgres class 23 integrity violation for duplicate keys.
const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func isPatchableColumn(field string) bool {
	switch field {
	case profile.FieldSubjectID, profile.FieldDisplayName, profile.FieldFirstName,
		profile.FieldLastName, profile.FieldPictureURL, profile.FieldBirthday, profile.FieldPhone:
		return true
	default:
		return false
	}
}

func scanRecord(row pgx.Row) (*profile.Record, error) {
	var record profile.Record
	err := row.Scan(
		&record.ID,
		&record.Email,
		&record.SubjectID,
		&record.DisplayName,
		&record.FirstName,
		&record.LastName,
		&record.PictureURL,
		&record.Birthday,
		&record.Phone,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
