package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/apollo-api/internal/metrics"
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/repository"
	"github.com/yukikurage/apollo-api/internal/utils"
	"gorm.io/gorm"
)

// PostService handles the posts feed.
type PostService struct {
	posts   repository.PostRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPostService creates a new PostService.
func NewPostService(posts repository.PostRepository, m *metrics.Metrics) *PostService {
	return &PostService{
		posts:   posts,
		metrics: m,
		now:     time.Now,
	}
}

// CreatePostInput is the body of a new post.
type CreatePostInput struct {
	Description string            `json:"description" validate:"required"`
	Chords      []string          `json:"chords" validate:"dive,max=64"`
	Voicings    []json.RawMessage `json:"voicings"`
}

// CreatePost creates a visible post owned by creatorID.
func (s *PostService) CreatePost(creatorID uint64, input CreatePostInput) (*models.Post, error) {
	input.Description = strings.TrimSpace(input.Description)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	chords := input.Chords
	if chords == nil {
		chords = []string{}
	}
	voicings := input.Voicings
	if voicings == nil {
		voicings = []json.RawMessage{}
	}
	encodedVoicings, err := json.Marshal(voicings)
	if err != nil {
		return nil, &ValidationError{Message: "\"voicings\" must be an array"}
	}

	post := &models.Post{
		CreatorID:   creatorID,
		Description: input.Description,
		Chords:      chords,
		Voicings:    encodedVoicings,
		Visibility:  true,
		DateCreated: s.now().UTC(),
	}
	if err := s.posts.CreateWithNextID(post); err != nil {
		return nil, err
	}

	s.metrics.Event(metrics.EventPostCreated, 1)
	return post, nil
}

// DeletePost hides a post. Only its creator may do so.
func (s *PostService) DeletePost(userID, postID uint64) error {
	post, err := s.posts.FindByID(postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidRequest
		}
		return fmt.Errorf("failed to find post: %w", err)
	}
	if post.CreatorID != userID {
		return ErrUnauthorizedAccess
	}

	if err := s.posts.SetVisibility(postID, false); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// ListPostsInput selects a page of the feed.
type ListPostsInput struct {
	Pagination     utils.PaginationParams
	OnlyBookmarked bool
}

// ListPosts returns visible posts newest first, optionally only those bookmarked by userID.
func (s *PostService) ListPosts(userID uint64, input ListPostsInput) ([]models.Post, error) {
	filter := repository.PostFilter{Pagination: input.Pagination}
	if input.OnlyBookmarked {
		filter.BookmarkedBy = &userID
	}
	return s.posts.ListVisible(filter)
}

// SearchPosts returns visible posts containing any of the chords.
func (s *PostService) SearchPosts(chords []string, pagination utils.PaginationParams) ([]models.Post, error) {
	query := make([]string, 0, len(chords))
	for _, chord := range chords {
		if chord = strings.TrimSpace(chord); chord != "" {
			query = append(query, chord)
		}
	}
	if len(query) == 0 {
		return nil, ErrSearchQueryRequired
	}
	return s.posts.ListVisible(repository.PostFilter{Chords: query, Pagination: pagination})
}

// Like adds userID to the likers of a visible post.
func (s *PostService) Like(userID, postID uint64) error {
	return s.react(userID, postID, func(p *models.Post) []uint64 { return p.LikerIDs() }, true, s.posts.AddLike)
}

// Unlike removes userID from the likers of a visible post.
func (s *PostService) Unlike(userID, postID uint64) error {
	return s.react(userID, postID, func(p *models.Post) []uint64 { return p.LikerIDs() }, false, s.posts.RemoveLike)
}

// Bookmark adds userID to the bookmarkers of a visible post.
func (s *PostService) Bookmark(userID, postID uint64) error {
	return s.react(userID, postID, func(p *models.Post) []uint64 { return p.BookmarkerIDs() }, true, s.posts.AddBookmark)
}

// Unbookmark removes userID from the bookmarkers of a visible post.
func (s *PostService) Unbookmark(userID, postID uint64) error {
	return s.react(userID, postID, func(p *models.Post) []uint64 { return p.BookmarkerIDs() }, false, s.posts.RemoveBookmark)
}

// react applies a like or bookmark change. Adding an existing entry or removing
// a missing one is rejected with ErrInvalidRequest.
func (s *PostService) react(userID, postID uint64, members func(*models.Post) []uint64, add bool, apply func(postID, userID uint64) error) error {
	post, err := s.posts.FindByID(postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		return fmt.Errorf("failed to find post: %w", err)
	}
	if !post.Visibility {
		return ErrPostNotFound
	}

	present := false
	for _, id := range members(post) {
		if id == userID {
			present = true
			break
		}
	}
	if present == add {
		return ErrInvalidRequest
	}

	// a concurrent identical request can still win the insert
	if err := apply(postID, userID); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrInvalidRequest
		}
		return err
	}
	return nil
}
