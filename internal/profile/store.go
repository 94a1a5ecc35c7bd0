package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrStoreUnavailable wraps any failure of the external profile store.
	ErrStoreUnavailable = errors.New("profile.store_unavailable")
	// ErrRecordNotFound indicates no profile matched the requested key.
	ErrRecordNotFound = errors.New("profile.record_not_found")
)

// Store is the external profile store collaborator. FindByKey returns
// (nil, nil) when no record matches either key.
type Store interface {
	FindByKey(ctx context.Context, email string, subjectID string) (*Record, error)
	Create(ctx context.Context, record *Record) error
	Update(ctx context.Context, recordID string, patch Patch) error
}

// AtomicMerger is an optional Store capability: a single conditional
// merge-upsert that fills only empty columns and therefore closes the
// lookup-then-write race between concurrent reconciliations. The Reconciler
// prefers it when the store offers it.
type AtomicMerger interface {
	MergeUpsert(ctx context.Context, incoming *Record) (*Record, bool, error)
}

// MemoryStore keeps profiles in process memory. It backs dev runs without a
// database URL and the test suites.
type MemoryStore struct {
	mutex     sync.Mutex
	records   map[string]*Record
	byEmail   map[string]string
	bySubject map[string]string
}

// NewMemoryStore constructs an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		byEmail:   make(map[string]string),
		bySubject: make(map[string]string),
	}
}

// FindByKey locates a record by email or, failing that, by subject id.
func (store *MemoryStore) FindByKey(ctx context.Context, email string, subjectID string) (*Record, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if recordID, ok := store.byEmail[email]; ok {
		return store.cloneLocked(recordID), nil
	}
	if subjectID != "" {
		if recordID, ok := store.bySubject[subjectID]; ok {
			return store.cloneLocked(recordID), nil
		}
	}
	return nil, nil
}

// Create inserts a new record, assigning an id when absent.
func (store *MemoryStore) Create(ctx context.Context, record *Record) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	stored := *record
	store.records[stored.ID] = &stored
	store.byEmail[stored.Email] = stored.ID
	if stored.SubjectID != "" {
		store.bySubject[stored.SubjectID] = stored.ID
	}
	return nil
}

// Update applies a field patch to an existing record.
func (store *MemoryStore) Update(ctx context.Context, recordID string, patch Patch) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record, ok := store.records[recordID]
	if !ok {
		return ErrRecordNotFound
	}
	for field, value := range patch {
		switch field {
		case FieldSubjectID:
			record.SubjectID = value
			store.bySubject[value] = record.ID
		case FieldDisplayName:
			record.DisplayName = value
		case FieldFirstName:
			record.FirstName = value
		case FieldLastName:
			record.LastName = value
		case FieldPictureURL:
			record.PictureURL = value
		case FieldBirthday:
			record.Birthday = value
		case FieldPhone:
			record.Phone = value
		}
	}
	return nil
}

func (store *MemoryStore) cloneLocked(recordID string) *Record {
	record, ok := store.records[recordID]
	if !ok {
		return nil
	}
	clone := *record
	return &clone
}
