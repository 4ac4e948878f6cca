package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/repository"
	"github.com/yukikurage/apollo-api/internal/utils"
)

func TestCreatePost(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.post.CreatePost(1, CreatePostInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "description")

	post, err := env.post.CreatePost(1, CreatePostInput{
		Description: "ii-V-I",
		Chords:      []string{"Dm7", "G7", "Cmaj7"},
		Voicings:    []json.RawMessage{json.RawMessage(`{"notes":[62,65,69]}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), post.ID)
	assert.True(t, post.Visibility)
	assert.JSONEq(t, `[{"notes":[62,65,69]}]`, string(post.Voicings))

	second, err := env.post.CreatePost(2, CreatePostInput{Description: "blues"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.ID)
	assert.Empty(t, second.Chords)
}

func TestCreatePost_ChordLength(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.post.CreatePost(1, CreatePostInput{
		Description: "cluster",
		Chords:      []string{"C", strings.Repeat("x", 65)},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, `"chords[1]" length must be less than or equal to 64 characters long`, verr.Message)

	post, err := env.post.CreatePost(1, CreatePostInput{
		Description: "cluster",
		Chords:      []string{strings.Repeat("x", 64)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), post.ID)
}

func TestDeletePost(t *testing.T) {
	env := setupTestEnv(t)
	post, err := env.post.CreatePost(1, CreatePostInput{Description: "mine"})
	require.NoError(t, err)

	require.ErrorIs(t, env.post.DeletePost(1, 404), ErrInvalidRequest)
	require.ErrorIs(t, env.post.DeletePost(2, post.ID), ErrUnauthorizedAccess)
	require.NoError(t, env.post.DeletePost(1, post.ID))

	posts, err := env.post.ListPosts(1, ListPostsInput{Pagination: utils.NewPaginationParams(1, 10)})
	require.NoError(t, err)
	assert.Empty(t, posts)

	require.ErrorIs(t, env.post.Like(1, post.ID), ErrPostNotFound)
}

func TestLikeAndBookmarkGuards(t *testing.T) {
	env := setupTestEnv(t)
	post, err := env.post.CreatePost(1, CreatePostInput{Description: "guarded"})
	require.NoError(t, err)

	require.NoError(t, env.post.Like(5, post.ID))
	require.ErrorIs(t, env.post.Like(5, post.ID), ErrInvalidRequest)
	require.NoError(t, env.post.Unlike(5, post.ID))
	require.ErrorIs(t, env.post.Unlike(5, post.ID), ErrInvalidRequest)

	require.ErrorIs(t, env.post.Unbookmark(5, post.ID), ErrInvalidRequest)
	require.NoError(t, env.post.Bookmark(5, post.ID))
	require.ErrorIs(t, env.post.Bookmark(5, post.ID), ErrInvalidRequest)

	require.ErrorIs(t, env.post.Like(5, 999), ErrPostNotFound)

	bookmarked, err := env.post.ListPosts(5, ListPostsInput{Pagination: utils.NewPaginationParams(1, 10), OnlyBookmarked: true})
	require.NoError(t, err)
	require.Len(t, bookmarked, 1)
	assert.Equal(t, []uint64{5}, bookmarked[0].BookmarkerIDs())

	none, err := env.post.ListPosts(6, ListPostsInput{Pagination: utils.NewPaginationParams(1, 10), OnlyBookmarked: true})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// staleReactions returns posts as they were before any like or bookmark landed.
type staleReactions struct {
	repository.PostRepository
}

func (r staleReactions) FindByID(id uint64) (*models.Post, error) {
	post, err := r.PostRepository.FindByID(id)
	if err != nil {
		return nil, err
	}
	post.Likes = nil
	post.Bookmarks = nil
	return post, nil
}

func TestLikeAndBookmark_ConcurrentDuplicate(t *testing.T) {
	env := setupTestEnv(t)
	post, err := env.post.CreatePost(1, CreatePostInput{Description: "popular"})
	require.NoError(t, err)

	racing := NewPostService(staleReactions{env.posts}, nil)
	require.NoError(t, racing.Like(2, post.ID))
	require.ErrorIs(t, racing.Like(2, post.ID), ErrInvalidRequest)
	require.NoError(t, racing.Bookmark(2, post.ID))
	require.ErrorIs(t, racing.Bookmark(2, post.ID), ErrInvalidRequest)
}

func TestSearchPosts(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.post.CreatePost(1, CreatePostInput{Description: "a", Chords: []string{"Am7", "D7"}})
	require.NoError(t, err)
	_, err = env.post.CreatePost(1, CreatePostInput{Description: "b", Chords: []string{"Cmaj7"}})
	require.NoError(t, err)

	_, err = env.post.SearchPosts(nil, utils.NewPaginationParams(1, 10))
	require.ErrorIs(t, err, ErrSearchQueryRequired)

	found, err := env.post.SearchPosts([]string{"D7", "G7"}, utils.NewPaginationParams(1, 10))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].Description)
}
