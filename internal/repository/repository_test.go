package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newUser(username string) *models.User {
	return &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		SignUpDate:   time.Now(),
		LoggedDays:   []string{},
	}
}

func TestUserRepository_CreateWithNextID_FirstUserGetsOne(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, NewSequenceRepository())

	user := newUser("firstuser")
	require.NoError(t, repo.CreateWithNextID(user))
	assert.Equal(t, uint64(1), user.ID)

	second := newUser("seconduser")
	require.NoError(t, repo.CreateWithNextID(second))
	assert.Equal(t, uint64(2), second.ID)
}

func TestUserRepository_CreateWithNextID_SeedsFromExistingMax(t *testing.T) {
	db := setupTestDB(t)
	legacy := newUser("legacyuser")
	legacy.ID = 41
	require.NoError(t, db.Create(legacy).Error)

	repo := NewUserRepository(db, NewSequenceRepository())
	user := newUser("nextuser")
	require.NoError(t, repo.CreateWithNextID(user))
	assert.Equal(t, uint64(42), user.ID)
}

func TestUserRepository_CreateWithNextID_DuplicateRollsBackSequence(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, NewSequenceRepository())

	require.NoError(t, repo.CreateWithNextID(newUser("sameuser")))

	err := repo.CreateWithNextID(newUser("sameuser"))
	require.ErrorIs(t, err, ErrCreateUser)

	next := newUser("otheruser")
	require.NoError(t, repo.CreateWithNextID(next))
	assert.Equal(t, uint64(2), next.ID)
}

func TestUserRepository_Lookups(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, NewSequenceRepository())
	user := newUser("lookupuser")
	require.NoError(t, repo.CreateWithNextID(user))

	byName, err := repo.FindByUsername("lookupuser")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.FindByEmail("lookupuser@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.FindByEmail("missing@example.com")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.UpdateFields(user.ID, map[string]interface{}{"has_active_subscription": true}))
	updated, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.True(t, updated.HasActiveSubscription)
}

func TestUserRepository_SaveStreak(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, NewSequenceRepository())
	user := newUser("streakuser")
	require.NoError(t, repo.CreateWithNextID(user))

	user.CurrentLoginStreak = 3
	user.WeeklyLoginStreak = 2
	user.DaysThisYear = 5
	user.LoggedDays = []string{"2024-03-01", "2024-03-02"}
	require.NoError(t, repo.SaveStreak(user))

	saved, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.CurrentLoginStreak)
	assert.Equal(t, 2, saved.WeeklyLoginStreak)
	assert.Equal(t, 5, saved.DaysThisYear)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, []string(saved.LoggedDays))
}

func createPost(t *testing.T, repo PostRepository, creator uint64, created time.Time, chords ...string) *models.Post {
	t.Helper()
	post := &models.Post{
		CreatorID:   creator,
		Description: "progression",
		Chords:      chords,
		Visibility:  true,
		DateCreated: created,
	}
	require.NoError(t, repo.CreateWithNextID(post))
	return post
}

func TestPostRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, NewSequenceRepository())

	post := createPost(t, repo, 7, time.Now(), "Cmaj7", "Dm7", "Cmaj7")
	assert.Equal(t, uint64(1), post.ID)

	var indexRows int64
	require.NoError(t, db.Model(&models.PostChord{}).Where("post_id = ?", post.ID).Count(&indexRows).Error)
	assert.Equal(t, int64(2), indexRows)

	require.NoError(t, repo.AddLike(post.ID, 3))
	require.NoError(t, repo.AddBookmark(post.ID, 4))
	require.ErrorIs(t, repo.AddLike(post.ID, 3), gorm.ErrDuplicatedKey)
	require.ErrorIs(t, repo.AddBookmark(post.ID, 4), gorm.ErrDuplicatedKey)

	found, err := repo.FindByID(post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, found.LikerIDs())
	assert.Equal(t, []uint64{4}, found.BookmarkerIDs())

	require.NoError(t, repo.RemoveLike(post.ID, 3))
	found, err = repo.FindByID(post.ID)
	require.NoError(t, err)
	assert.Empty(t, found.LikerIDs())
}

func TestPostRepository_ListVisible(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, NewSequenceRepository())

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	oldest := createPost(t, repo, 1, base, "C")
	middle := createPost(t, repo, 1, base.Add(time.Hour), "G")
	newest := createPost(t, repo, 2, base.Add(2*time.Hour), "C", "F")
	hidden := createPost(t, repo, 2, base.Add(3*time.Hour), "C")
	require.NoError(t, repo.SetVisibility(hidden.ID, false))

	all, err := repo.ListVisible(PostFilter{Pagination: utils.NewPaginationParams(1, 10)})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{newest.ID, middle.ID, oldest.ID}, []uint64{all[0].ID, all[1].ID, all[2].ID})

	page2, err := repo.ListVisible(PostFilter{Pagination: utils.NewPaginationParams(2, 2)})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, oldest.ID, page2[0].ID)

	withC, err := repo.ListVisible(PostFilter{Chords: []string{"C"}, Pagination: utils.NewPaginationParams(1, 10)})
	require.NoError(t, err)
	require.Len(t, withC, 2)
	assert.Equal(t, newest.ID, withC[0].ID)
	assert.Equal(t, oldest.ID, withC[1].ID)

	require.NoError(t, repo.AddBookmark(middle.ID, 9))
	require.NoError(t, repo.AddBookmark(hidden.ID, 9))
	bookmarker := uint64(9)
	bookmarked, err := repo.ListVisible(PostFilter{BookmarkedBy: &bookmarker, Pagination: utils.NewPaginationParams(1, 10)})
	require.NoError(t, err)
	require.Len(t, bookmarked, 1)
	assert.Equal(t, middle.ID, bookmarked[0].ID)
}

func TestCodeRepository_ExpiryAndPurge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCodeRepository(db)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreatePasswordReset(&models.PasswordReset{
		ResetCode: "ABC123", Email: "a@example.com", ExpiresAt: now.Add(10 * time.Minute),
	}))
	require.NoError(t, repo.CreateSignUpCode(&models.SignUpCode{
		SignUpCode: "XYZ789", Email: "b@example.com", ExpiresAt: now.Add(-time.Minute),
	}))

	reset, err := repo.FindValidPasswordReset("ABC123", now.Add(9*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", reset.Email)

	_, err = repo.FindValidPasswordReset("ABC123", now.Add(11*time.Minute))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindValidSignUpCode("XYZ789", "b@example.com", now)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	deleted, err := repo.DeleteExpired(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestRefreshTokenAndEarlyAccessRepositories(t *testing.T) {
	db := setupTestDB(t)

	tokens := NewRefreshTokenRepository(db)
	require.NoError(t, tokens.Create(&models.RefreshToken{ID: "token-id", UserID: 1, Token: "jwt"}))
	found, err := tokens.FindByID("token-id")
	require.NoError(t, err)
	assert.Equal(t, "jwt", found.Token)

	_, err = tokens.FindByID("unknown")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	access := NewEarlyAccessRepository(db)
	exists, err := access.Exists("x@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, access.Create(&models.EarlyAccess{Email: "x@example.com"}))
	exists, err = access.Exists("x@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}
