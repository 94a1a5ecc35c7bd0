package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/idbridge/internal/identity"
)

// SelfUpdate carries the fields a user may change through the authenticated
// self-service path. Nil pointers leave the stored value untouched.
type SelfUpdate struct {
	Birthday *string
	Phone    *string
}

// Reconciler keeps the external profile store in sync with canonical
// identities. Reconciliation fills empty fields only; values already present
// on a record are never overwritten, so edits made directly in the store
// survive later sign-ins.
type Reconciler struct {
	store       Store
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewReconciler constructs a Reconciler. callTimeout bounds each store call.
func NewReconciler(store Store, callTimeout time.Duration, logger *zap.Logger) *Reconciler {
	if store == nil {
		panic("profile store is required")
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, callTimeout: callTimeout, logger: logger}
}

// Reconcile looks up the record matching the identity and applies a minimal
// patch. It returns the resulting record and whether a write happened. Any
// store failure is wrapped as ErrStoreUnavailable so callers can degrade to
// issuing a credential without profile sync.
func (reconciler *Reconciler) Reconcile(ctx context.Context, ident identity.Identity) (*Record, bool, error) {
	boundCtx, cancel := context.WithTimeout(ctx, reconciler.callTimeout)
	defer cancel()

	if merger, ok := reconciler.store.(AtomicMerger); ok {
		record, applied, mergeErr := merger.MergeUpsert(boundCtx, &Record{
			Email:       ident.Email,
			SubjectID:   ident.SubjectID,
			DisplayName: ident.DisplayName,
			FirstName:   ident.GivenName,
			LastName:    ident.FamilyName,
			PictureURL:  ident.PictureURL,
		})
		if mergeErr != nil {
			return nil, false, fmt.Errorf("profile.reconcile.merge: %w: %v", ErrStoreUnavailable, mergeErr)
		}
		return record, applied, nil
	}

	existing, findErr := reconciler.store.FindByKey(boundCtx, ident.Email, ident.SubjectID)
	if findErr != nil {
		return nil, false, fmt.Errorf("profile.reconcile.find: %w: %v", ErrStoreUnavailable, findErr)
	}

	if existing == nil {
		created := &Record{
			Email:       ident.Email,
			SubjectID:   ident.SubjectID,
			DisplayName: ident.DisplayName,
			FirstName:   ident.GivenName,
			LastName:    ident.FamilyName,
			PictureURL:  ident.PictureURL,
		}
		if createErr := reconciler.store.Create(boundCtx, created); createErr != nil {
			return nil, false, fmt.Errorf("profile.reconcile.create: %w: %v", ErrStoreUnavailable, createErr)
		}
		reconciler.logger.Info("profile created",
			zap.String("code", "profile.reconcile.created"),
			zap.String("record_id", created.ID))
		return created, true, nil
	}

	patch := BuildPatch(existing, ident)
	if len(patch) == 0 {
		return existing, false, nil
	}
	if updateErr := reconciler.store.Update(boundCtx, existing.ID, patch); updateErr != nil {
		return existing, false, fmt.Errorf("profile.reconcile.update: %w: %v", ErrStoreUnavailable, updateErr)
	}
	ApplyPatch(existing, patch)
	reconciler.logger.Info("profile patched",
		zap.String("code", "profile.reconcile.patched"),
		zap.String("record_id", existing.ID),
		zap.Int("fields", len(patch)))
	return existing, true, nil
}

// ApplySelfUpdate overwrites the self-service fields for the authenticated
// user. When no record exists yet (a prior reconcile may have been lost to a
// store outage) a minimal one is created first.
func (reconciler *Reconciler) ApplySelfUpdate(ctx context.Context, email string, subjectID string, update SelfUpdate) (*Record, error) {
	boundCtx, cancel := context.WithTimeout(ctx, reconciler.callTimeout)
	defer cancel()

	record, findErr := reconciler.store.FindByKey(boundCtx, email, subjectID)
	if findErr != nil {
		return nil, fmt.Errorf("profile.self_update.find: %w: %v", ErrStoreUnavailable, findErr)
	}
	if record == nil {
		record = &Record{Email: email, SubjectID: subjectID}
		if createErr := reconciler.store.Create(boundCtx, record); createErr != nil {
			return nil, fmt.Errorf("profile.self_update.create: %w: %v", ErrStoreUnavailable, createErr)
		}
	}

	patch := Patch{}
	if update.Birthday != nil {
		patch[FieldBirthday] = strings.TrimSpace(*update.Birthday)
	}
	if update.Phone != nil {
		patch[FieldPhone] = strings.TrimSpace(*update.Phone)
	}
	if len(patch) == 0 {
		return record, nil
	}
	if updateErr := reconciler.store.Update(boundCtx, record.ID, patch); updateErr != nil {
		return nil, fmt.Errorf("profile.self_update.update: %w: %v", ErrStoreUnavailable, updateErr)
	}
	ApplyPatch(record, patch)
	return record, nil
}

// BuildPatch computes the minimal non-destructive patch for an existing
// record: only fields currently empty on the record and non-empty on the
// incoming identity are included.
func BuildPatch(record *Record, ident identity.Identity) Patch {
	patch := Patch{}
	fillMissing(patch, FieldSubjectID, record.SubjectID, ident.SubjectID)
	fillMissing(patch, FieldDisplayName, record.DisplayName, ident.DisplayName)
	fillMissing(patch, FieldFirstName, record.FirstName, ident.GivenName)
	fillMissing(patch, FieldLastName, record.LastName, ident.FamilyName)
	fillMissing(patch, FieldPictureURL, record.PictureURL, ident.PictureURL)
	return patch
}

func fillMissing(patch Patch, field string, current string, incoming string) {
	if strings.TrimSpace(current) == "" && strings.TrimSpace(incoming) != "" {
		patch[field] = incoming
	}
}

// ApplyPatch writes patch values onto the record in place. Unknown fields are
// ignored.
func ApplyPatch(record *Record, patch Patch) {
	for field, value := range patch {
		switch field {
		case FieldSubjectID:
			record.SubjectID = value
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
}
