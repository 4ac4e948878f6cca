package repository

import (
	"errors"
	"fmt"

	"github.com/yukikurage/apollo-api/internal/database"
	"github.com/yukikurage/apollo-api/internal/models"
	"gorm.io/gorm"
)

// GormPostRepository is a GORM implementation of PostRepository
type GormPostRepository struct {
	db        *gorm.DB
	sequences SequenceRepository
}

var (
	// ErrAllocatePostID is returned when the id sequence could not be advanced.
	ErrAllocatePostID = errors.New("post repository: allocate id failed")
	// ErrCreatePost is returned when inserting the post or its chord index fails.
	ErrCreatePost = errors.New("post repository: create post failed")
)

// NewPostRepository creates a new PostRepository
func NewPostRepository(db *gorm.DB, sequences SequenceRepository) PostRepository {
	return &GormPostRepository{db: db, sequences: sequences}
}

// CreateWithNextID allocates an id and creates the post with one index row per distinct chord.
func (r *GormPostRepository) CreateWithNextID(post *models.Post) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		id, err := r.sequences.Next(tx, models.SequencePosts, "posts")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAllocatePostID, err)
		}
		post.ID = id

		post.ChordIndex = nil
		seen := make(map[string]struct{}, len(post.Chords))
		for _, chord := range post.Chords {
			if _, ok := seen[chord]; ok {
				continue
			}
			seen[chord] = struct{}{}
			post.ChordIndex = append(post.ChordIndex, models.PostChord{PostID: id, Chord: chord})
		}

		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrCreatePost, err)
		}
		return nil
	})
}

// FindByID finds a post by ID with its likes and bookmarks
func (r *GormPostRepository) FindByID(id uint64) (*models.Post, error) {
	var post models.Post
	if err := r.withReactions(r.db).First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *GormPostRepository) SetVisibility(id uint64, visible bool) error {
	return r.db.Model(&models.Post{}).Where("id = ?", id).Update("visibility", visible).Error
}

// ListVisible retrieves visible posts newest first, optionally restricted to
// posts bookmarked by a user or containing any of the given chords
func (r *GormPostRepository) ListVisible(filter PostFilter) ([]models.Post, error) {
	query := r.db.Model(&models.Post{}).Scopes(database.Visible)

	if filter.BookmarkedBy != nil {
		bookmarkSubQuery := r.db.Model(&models.PostBookmark{}).
			Select("1").
			Where("post_bookmarks.post_id = posts.id").
			Where("post_bookmarks.user_id = ?", *filter.BookmarkedBy)
		query = query.Where("EXISTS (?)", bookmarkSubQuery)
	}
	if len(filter.Chords) > 0 {
		chordSubQuery := r.db.Model(&models.PostChord{}).
			Select("1").
			Where("post_chords.post_id = posts.id").
			Where("post_chords.chord IN ?", filter.Chords)
		query = query.Where("EXISTS (?)", chordSubQuery)
	}

	posts := []models.Post{}
	err := r.withReactions(query).
		Scopes(database.NewestFirst, database.Paginate(filter.Pagination)).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *GormPostRepository) AddLike(postID, userID uint64) error {
	return r.db.Create(&models.PostLike{PostID: postID, UserID: userID}).Error
}

func (r *GormPostRepository) RemoveLike(postID, userID uint64) error {
	return r.db.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{}).Error
}

func (r *GormPostRepository) AddBookmark(postID, userID uint64) error {
	return r.db.Create(&models.PostBookmark{PostID: postID, UserID: userID}).Error
}

func (r *GormPostRepository) RemoveBookmark(postID, userID uint64) error {
	return r.db.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostBookmark{}).Error
}

func (r *GormPostRepository) withReactions(db *gorm.DB) *gorm.DB {
	byCreation := func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}
	return db.Preload("Likes", byCreation).Preload("Bookmarks", byCreation)
}
