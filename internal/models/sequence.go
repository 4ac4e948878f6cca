package models

// Sequence is a named monotonically increasing counter used to allocate ids.
type Sequence struct {
	Name  string `gorm:"primarykey;type:varchar(64)"`
	Value uint64 `gorm:"not null;default:0"`
}

// Sequence names
const (
	SequenceUsers = "users"
	SequencePosts = "posts"
)

// All lists every model managed by migrations.
func All() []any {
	return []any{
		&User{},
		&Post{},
		&PostChord{},
		&PostLike{},
		&PostBookmark{},
		&PasswordReset{},
		&SignUpCode{},
		&RefreshToken{},
		&EarlyAccess{},
		&Sequence{},
	}
}
