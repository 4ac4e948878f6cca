package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type index struct {
	table   string
	name    string
	columns string
}

// feedIndexes back the feed and code lookups.
var feedIndexes = []index{
	// Posts: visible feed ordered by creation date
	{"posts", "idx_posts_visibility_date_created", "visibility, date_created"},
	{"post_chords", "idx_post_chords_chord", "chord"},
	{"post_bookmarks", "idx_post_bookmarks_user_id", "user_id"},
	{"post_likes", "idx_post_likes_user_id", "user_id"},

	// One-time codes are looked up by code and expiry
	{"password_resets", "idx_password_resets_code_expires", "reset_code, expires_at"},
	{"sign_up_codes", "idx_sign_up_codes_email_code", "email, sign_up_code"},
}

// AddIndexes adds composite indexes on PostgreSQL. Other drivers rely on the
// single-column indexes declared on the models.
func AddIndexes(db *gorm.DB, log logrus.FieldLogger) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	for _, idx := range feedIndexes {
		var count int64
		err := db.Raw(`
			SELECT COUNT(*)
			FROM pg_indexes
			WHERE tablename = ? AND indexname = ?
		`, idx.table, idx.name).Scan(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", idx.name, err)
		}

		if count > 0 {
			log.WithField("index", idx.name).Debug("Index already exists, skipping")
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.WithField("index", idx.name).Infof("Created index on %s(%s)", idx.table, idx.columns)
	}

	return nil
}
