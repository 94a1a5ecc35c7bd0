package profile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("profile_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("profile_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("profile_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("profile_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("profile_store.unsupported_no_scheme")
)

// DatabaseStore persists user profiles using GORM. The lookup-then-write
// path is best effort; concurrent reconciliations for the same email may
// race. The pgx-backed store closes that race on Postgres.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

// NewDatabaseStore constructs a GORM-backed store from a postgres:// or
// sqlite:// URL and migrates the profile table.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("profile_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("profile_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&Record{}); migrateErr != nil {
		return nil, fmt.Errorf("profile_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// FindByKey locates a record by email or, failing that, by subject id. If a
// query could match more than one row, the first row wins.
func (store *DatabaseStore) FindByKey(ctx context.Context, email string, subjectID string) (*Record, error) {
	var record Record
	query := store.db.WithContext(ctx).Where("email = ?", email)
	if subjectID != "" {
		query = store.db.WithContext(ctx).Where("email = ? OR subject_id = ?", email, subjectID)
	}
	err := query.Order("created_at").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("profile_store.find.%s: %w", store.driverLabel, err)
	}
	return &record, nil
}

// Create inserts a new profile record, assigning an id when absent.
func (store *DatabaseStore) Create(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if err := store.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("profile_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Update applies a field patch as a single write.
func (store *DatabaseStore) Update(ctx context.Context, recordID string, patch Patch) error {
	if len(patch) == 0 {
		return nil
	}
	columns := make(map[string]interface{}, len(patch))
	for field, value := range patch {
		columns[field] = value
	}
	result := store.db.WithContext(ctx).Model(&Record{}).Where("id = ?", recordID).Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("profile_store.update.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("profile_store.update.%s: %w", store.driverLabel, ErrRecordNotFound)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("profile_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("profile_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("profile_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("profile_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
