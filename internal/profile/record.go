package profile

import "time"

// Field names addressable by a Patch.
const (
	FieldSubjectID   = "subject_id"
	FieldDisplayName = "display_name"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldPictureURL  = "picture_url"
	FieldBirthday    = "birthday"
	FieldPhone       = "phone"
)

// Record is one row of the external profile store. Email is the primary
// reconciliation key; SubjectID becomes a secondary key once assigned.
// Birthday and Phone are self-service fields and are never written by the
// reconciliation path.
type Record struct {
	ID          string    `gorm:"column:id;primaryKey;size:36"`
	Email       string    `gorm:"column:email;uniqueIndex;size:320;not null"`
	SubjectID   string    `gorm:"column:subject_id;index;size:190;not null;default:''"`
	DisplayName string    `gorm:"column:display_name;size:320;not null;default:''"`
	FirstName   string    `gorm:"column:first_name;size:190;not null;default:''"`
	LastName    string    `gorm:"column:last_name;size:190;not null;default:''"`
	PictureURL  string    `gorm:"column:picture_url;size:512;not null;default:''"`
	Birthday    string    `gorm:"column:birthday;size:32;not null;default:''"`
	Phone       string    `gorm:"column:phone;size:32;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Record) TableName() string {
	return "user_profiles"
}

// Patch maps profile field names to replacement values. An empty patch
// means no write is required.
type Patch map[string]string
