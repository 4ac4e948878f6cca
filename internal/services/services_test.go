package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yukikurage/apollo-api/internal/auth"
	"github.com/yukikurage/apollo-api/internal/logger"
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/payments"
	"github.com/yukikurage/apollo-api/internal/repository"
	"github.com/yukikurage/apollo-api/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakePayments struct {
	active    map[string]bool
	err       error
	details   *payments.SubscriptionDetails
	owners    map[string]string
	continued []string
	canceled  []string
	promo     string
}

func (f *fakePayments) HasActiveSubscription(ctx context.Context, email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.active[email], nil
}

func (f *fakePayments) SubscriptionDetails(ctx context.Context, email string) (*payments.SubscriptionDetails, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.details, nil
}

func (f *fakePayments) owns(email, id string) error {
	if f.err != nil {
		return f.err
	}
	if f.owners[id] != email {
		return payments.ErrSubscriptionNotOwned
	}
	return nil
}

func (f *fakePayments) ContinueSubscription(ctx context.Context, email, id string) error {
	if err := f.owns(email, id); err != nil {
		return err
	}
	f.continued = append(f.continued, id)
	return nil
}

func (f *fakePayments) CancelSubscription(ctx context.Context, email, id string) error {
	if err := f.owns(email, id); err != nil {
		return err
	}
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakePayments) CreatePromoCode(ctx context.Context) (string, error) {
	return f.promo, f.err
}

type sentMail struct {
	kind  string
	email string
	code  string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendSignUpCode(ctx context.Context, email, code string) error {
	return f.record("signup", email, code)
}

func (f *fakeMailer) SendResetCode(ctx context.Context, email, code string) error {
	return f.record("reset", email, code)
}

func (f *fakeMailer) record(kind, email, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{kind: kind, email: email, code: code})
	return nil
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type taggedContact struct {
	email string
	tag   string
}

type fakeCRM struct {
	purchasers map[string]bool
	tags       []taggedContact
}

func (f *fakeCRM) HasPurchased(ctx context.Context, email string) bool {
	return f.purchasers[email]
}

func (f *fakeCRM) Tag(ctx context.Context, email, tag string) {
	f.tags = append(f.tags, taggedContact{email: email, tag: tag})
}

type fakeUploader struct {
	err error
}

func (f *fakeUploader) PresignProfileImageUpload(ctx context.Context, userID uint64) (*storage.PresignedUpload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &storage.PresignedUpload{Key: "profile-images/key", URL: "https://upload.example.com"}, nil
}

type testEnv struct {
	db       *gorm.DB
	users    repository.UserRepository
	codes    repository.CodeRepository
	posts    repository.PostRepository
	tokens   *auth.TokenIssuer
	sessions *SessionIssuer
	payments *fakePayments
	mailer   *fakeMailer
	crm      *fakeCRM
	uploader *fakeUploader
	auth     *AuthService
	user     *UserService
	post     *PostService
}

func setupTestEnv(t *testing.T) *testEnv {
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

	tokens, err := auth.NewTokenIssuer("test-secret")
	require.NoError(t, err)

	sequences := repository.NewSequenceRepository()
	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db, sequences),
		codes:    repository.NewCodeRepository(db),
		posts:    repository.NewPostRepository(db, sequences),
		tokens:   tokens,
		payments: &fakePayments{active: map[string]bool{}},
		mailer:   &fakeMailer{},
		crm:      &fakeCRM{purchasers: map[string]bool{}},
		uploader: &fakeUploader{},
	}
	env.sessions = NewSessionIssuer(tokens, repository.NewRefreshTokenRepository(db))

	log := logger.Discard()
	env.auth = NewAuthService(AuthDeps{
		Users:       env.users,
		Codes:       env.codes,
		EarlyAccess: repository.NewEarlyAccessRepository(db),
		Sessions:    env.sessions,
		Payments:    env.payments,
		Mailer:      env.mailer,
		CRM:         env.crm,
		Log:         log,
	})
	env.user = NewUserService(UserDeps{
		Users:           env.users,
		Sessions:        env.sessions,
		Payments:        env.payments,
		CRM:             env.crm,
		Uploader:        env.uploader,
		Trial:           TrialPolicy{Enabled: true, Days: 7},
		DefaultTimeZone: "America/Chicago",
		Log:             log,
	})
	env.post = NewPostService(env.posts, nil)
	return env
}

// signUp runs the two signup steps and returns the created user and session.
func (env *testEnv) signUp(t *testing.T, username, email, password string) (*models.User, *Session) {
	t.Helper()

	input := SignUpInput{Username: username, Email: email, Password: password}
	require.NoError(t, env.auth.RequestSignUp(context.Background(), input))

	user, session, err := env.auth.CompleteSignUp(context.Background(), CompleteSignUpInput{
		SignUpInput: input,
		SignUpCode:  env.mailer.last().code,
	})
	require.NoError(t, err)
	return user, session
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var errProvider = errors.New("provider unavailable")
