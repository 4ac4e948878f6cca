package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/apollo-api/internal/auth"
	"github.com/yukikurage/apollo-api/internal/logger"
	"github.com/yukikurage/apollo-api/internal/metrics"
	"github.com/yukikurage/apollo-api/internal/middleware"
	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/payments"
	"github.com/yukikurage/apollo-api/internal/repository"
	"github.com/yukikurage/apollo-api/internal/services"
	"github.com/yukikurage/apollo-api/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type capturingMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *capturingMailer) SendSignUpCode(ctx context.Context, email, code string) error {
	return m.capture("signup:"+email, code)
}

func (m *capturingMailer) SendResetCode(ctx context.Context, email, code string) error {
	return m.capture("reset:"+email, code)
}

func (m *capturingMailer) capture(key, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[key] = code
	return nil
}

func (m *capturingMailer) code(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[key]
}

type staticCRM struct {
	purchasers map[string]bool
}

func (c *staticCRM) HasPurchased(ctx context.Context, email string) bool {
	return c.purchasers[email]
}

func (c *staticCRM) Tag(ctx context.Context, email, tag string) {}

type handlerTestEnv struct {
	db     *gorm.DB
	router *gin.Engine
	mailer *capturingMailer
	crm    *staticCRM
}

func setupHandlerTestEnv(t *testing.T) *handlerTestEnv {
	t.Helper()
	return setupHandlerTestEnvWithProxies(t, nil)
}

func setupHandlerTestEnvWithProxies(t *testing.T, trustedProxies []string) *handlerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})
	require.NoError(t, db.AutoMigrate(models.All()...))

	tokens, err := auth.NewTokenIssuer("handler-secret")
	require.NoError(t, err)
	uploader, err := storage.NewS3Uploader(context.Background(), storage.Config{})
	require.NoError(t, err)

	log := logger.Discard()
	m := metrics.New()
	sequences := repository.NewSequenceRepository()
	users := repository.NewUserRepository(db, sequences)
	sessions := services.NewSessionIssuer(tokens, repository.NewRefreshTokenRepository(db))
	provider := payments.NewStripeProvider("", "", "")

	env := &handlerTestEnv{
		db:     db,
		mailer: &capturingMailer{codes: map[string]string{}},
		crm:    &staticCRM{purchasers: map[string]bool{}},
	}

	authService := services.NewAuthService(services.AuthDeps{
		Users:       users,
		Codes:       repository.NewCodeRepository(db),
		EarlyAccess: repository.NewEarlyAccessRepository(db),
		Sessions:    sessions,
		Payments:    provider,
		Mailer:      env.mailer,
		CRM:         env.crm,
		Metrics:     m,
		Log:         log,
	})
	userService := services.NewUserService(services.UserDeps{
		Users:           users,
		Sessions:        sessions,
		Payments:        provider,
		CRM:             env.crm,
		Uploader:        uploader,
		Trial:           services.TrialPolicy{Enabled: true, Days: 7},
		DefaultTimeZone: "America/Chicago",
		Log:             log,
	})

	env.router, err = NewRouter(RouterDeps{
		AuthService:    authService,
		UserService:    userService,
		PostService:    services.NewPostService(repository.NewPostRepository(db, sequences), m),
		Tokens:         tokens,
		LoginLimiter:   middleware.NewMemoryLimiter(10, 15*time.Minute),
		SignUpLimiter:  middleware.NewMemoryLimiter(10, 15*time.Minute),
		Metrics:        m,
		Log:            log,
		CORSOrigins:    []string{"*"},
		BodyLimitBytes: 1 << 20,
		TrustedProxies: trustedProxies,
		WebSocketURL:   "wss://socket.example.com",
	})
	require.NoError(t, err)
	return env
}

func (env *handlerTestEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

type session struct {
	userID    uint64
	token     string
	refreshID string
}

// signUp registers a user through both signup endpoints.
func (env *handlerTestEnv) signUp(t *testing.T, username, email, password string) session {
	t.Helper()

	w := env.do(http.MethodPost, "/api/users/", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/auth/sign_up_code_check", map[string]string{
		"signUpCode": env.mailer.code("signup:" + email),
		"username":   username,
		"email":      email,
		"password":   password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		ID uint64 `json:"_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	return session{
		userID:    body.ID,
		token:     strings.TrimPrefix(w.Header().Get("Authorization"), "Bearer "),
		refreshID: w.Header().Get("Refresh-Token-Id"),
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestSignUpFlow(t *testing.T) {
	env := setupHandlerTestEnv(t)

	w := env.do(http.MethodPost, "/api/users/", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "the above parameters are required", decode(t, w)["message"])

	s := env.signUp(t, "firstuser", "first@example.com", "password123")
	assert.Equal(t, uint64(1), s.userID)
	assert.NotEmpty(t, s.token)
	assert.NotEmpty(t, s.refreshID)

	second := env.signUp(t, "seconduser", "second@example.com", "password123")
	assert.Equal(t, uint64(2), second.userID)

	w = env.do(http.MethodPost, "/api/users/", map[string]string{
		"username": "another",
		"email":    "first@example.com",
		"password": "password123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email already exists", decode(t, w)["message"])

	w = env.do(http.MethodPost, "/api/auth/sign_up_code_check", map[string]string{
		"signUpCode": "nope00",
		"username":   "third",
		"email":      "third@example.com",
		"password":   "password123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid code", decode(t, w)["message"])
}

func TestLogin(t *testing.T) {
	env := setupHandlerTestEnv(t)
	env.signUp(t, "loginuser", "login@example.com", "password123")

	w := env.do(http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "loginuser",
		"password":        "wrong-password",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid login credentials", decode(t, w)["message"])
	assert.Equal(t, "10", w.Header().Get("RateLimit-Limit"))

	w = env.do(http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "login@example.com",
		"password":        "password123",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["message"])
	assert.True(t, strings.HasPrefix(w.Header().Get("Authorization"), "Bearer "))
	assert.NotEmpty(t, w.Header().Get("Refresh-Token-Id"))
}

func TestLogin_RateLimited(t *testing.T) {
	env := setupHandlerTestEnv(t)

	credentials := map[string]string{"usernameOrEmail": "nobody", "password": "password123"}
	for i := 0; i < 10; i++ {
		w := env.do(http.MethodPost, "/api/auth/login", credentials, "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := env.do(http.MethodPost, "/api/auth/login", credentials, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, middleware.LoginLimitMessage, decode(t, w)["message"])
}

func postLoginVia(env *handlerTestEnv, forwardedFor string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"usernameOrEmail": "nobody", "password": "password123"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestLogin_RateLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	env := setupHandlerTestEnv(t)

	statuses := map[int]int{}
	for i := 0; i < 50; i++ {
		w := postLoginVia(env, fmt.Sprintf("203.0.113.%d", i+1))
		statuses[w.Code]++
	}
	assert.Equal(t, map[int]int{http.StatusBadRequest: 10, http.StatusTooManyRequests: 40}, statuses)
}

func TestLogin_RateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	env := setupHandlerTestEnvWithProxies(t, []string{"192.0.2.10"})

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusBadRequest, postLoginVia(env, "203.0.113.1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, postLoginVia(env, "203.0.113.1").Code)
	assert.Equal(t, http.StatusBadRequest, postLoginVia(env, "203.0.113.2").Code)
}

func TestNewRouter_RejectsInvalidTrustedProxies(t *testing.T) {
	_, err := NewRouter(RouterDeps{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, err)
}

func TestGetMe(t *testing.T) {
	env := setupHandlerTestEnv(t)
	s := env.signUp(t, "meuser", "me@example.com", "password123")

	w := env.do(http.MethodGet, "/api/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/users/me", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid token", decode(t, w)["message"])

	w = env.do(http.MethodGet, "/api/users/me", nil, s.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"_id":1,"username":"meuser","email":"me@example.com"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "$2a$")
}

func TestProfileImageUploadURL_NotConfigured(t *testing.T) {
	env := setupHandlerTestEnv(t)
	s := env.signUp(t, "uploader", "uploader@example.com", "password123")

	w := env.do(http.MethodGet, "/api/users/profile_image/upload_url", nil, s.token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(http.MethodPost, "/api/users/profile_image", map[string]string{"profileImageObj": "avatar-3"}, s.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "avatar-3", decode(t, w)["profileImageObj"])
}

func TestPasswordResetFlow(t *testing.T) {
	env := setupHandlerTestEnv(t)
	env.signUp(t, "forgetful", "forgetful@example.com", "password123")

	w := env.do(http.MethodPost, "/api/auth/reset_password", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email is required", decode(t, w)["message"])

	w = env.do(http.MethodPost, "/api/auth/reset_password", map[string]string{"email": "unknown@example.com"}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/auth/reset_password", map[string]string{"email": "forgetful@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	code := env.mailer.code("reset:forgetful@example.com")
	require.Len(t, code, 6)

	w = env.do(http.MethodPost, "/api/auth/password_reset_code_check", map[string]string{"resetCode": code}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPut, "/api/auth/update_password", map[string]string{
		"resetCode": code,
		"password":  "newpassword123",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Refresh-Token-Id"))

	w = env.do(http.MethodPost, "/api/auth/login", map[string]string{
		"usernameOrEmail": "forgetful",
		"password":        "newpassword123",
	}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// expire the code
	require.NoError(t, env.db.Model(&models.PasswordReset{}).
		Where("reset_code = ?", code).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	w = env.do(http.MethodPost, "/api/auth/password_reset_code_check", map[string]string{"resetCode": code}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid code", decode(t, w)["message"])
}

func TestLoginStreakAndCheckRefresh(t *testing.T) {
	env := setupHandlerTestEnv(t)
	s := env.signUp(t, "streakuser", "streak@example.com", "password123")

	w := env.do(http.MethodPost, "/api/users/login_streak", map[string]string{"refreshTokenId": "missing"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["message"])

	w = env.do(http.MethodPost, "/api/users/login_streak", map[string]string{
		"refreshTokenId": s.refreshID,
		"timeZone":       "Nowhere/Land",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid time zone", decode(t, w)["message"])

	w = env.do(http.MethodPost, "/api/users/login_streak", map[string]string{
		"refreshTokenId": s.refreshID,
		"timeZone":       "America/Chicago",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["currentLoginStreak"])
	assert.Len(t, body["currentWeekDays"], 7)
	assert.NotEmpty(t, w.Header().Get("Authorization"))

	// access tokens live 30 minutes, always inside the renewal window
	w = env.do(http.MethodPost, "/api/auth/check_refresh", map[string]string{"refreshTokenId": s.refreshID}, s.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["message"])
	assert.NotEmpty(t, w.Header().Get("Authorization"))

	w = env.do(http.MethodPost, "/api/auth/check_refresh", map[string]string{"refreshTokenId": s.refreshID}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Authorization"))

	w = env.do(http.MethodPost, "/api/auth/check_refresh", map[string]string{"refreshTokenId": "missing"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["message"])

	w = env.do(http.MethodPost, "/api/auth/check_refresh", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorize(t *testing.T) {
	env := setupHandlerTestEnv(t)
	env.crm.purchasers["buyer@example.com"] = true

	w := env.do(http.MethodPost, "/api/auth/authorize", map[string]string{"email": "stranger@example.com"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized access", decode(t, w)["message"])

	w = env.do(http.MethodPost, "/api/auth/authorize", map[string]string{"email": "buyer@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Authorization"))

	w = env.do(http.MethodPost, "/api/auth/authorize", map[string]string{"email": "buyer@example.com"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostScenario(t *testing.T) {
	env := setupHandlerTestEnv(t)
	author := env.signUp(t, "authoruser", "author@example.com", "password123")
	reader := env.signUp(t, "readeruser", "reader@example.com", "password123")

	w := env.do(http.MethodPost, "/api/posts/", map[string]interface{}{
		"description": "minor ii-V",
		"chords":      []string{"Bm7b5", "E7", "Am"},
		"voicings":    []interface{}{map[string]interface{}{"notes": []int{59, 62, 65}}},
	}, author.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, float64(1), created["_id"])
	postPath := fmt.Sprintf("/api/posts/%d", uint64(created["_id"].(float64)))

	w = env.do(http.MethodPut, postPath+"/like", nil, reader.token)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPut, postPath+"/like", nil, reader.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request", decode(t, w)["message"])

	w = env.do(http.MethodPut, postPath+"/bookmark", nil, reader.token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/posts/?showBookmarked=true", nil, reader.token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Posts []struct {
			ID              uint64   `json:"_id"`
			PostCreatorID   uint64   `json:"postCreatorId"`
			UsersLiked      []uint64 `json:"usersLiked"`
			UsersBookmarked []uint64 `json:"usersBookmarked"`
		} `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Posts, 1)
	assert.Equal(t, author.userID, list.Posts[0].PostCreatorID)
	assert.Equal(t, []uint64{reader.userID}, list.Posts[0].UsersLiked)
	assert.Equal(t, []uint64{reader.userID}, list.Posts[0].UsersBookmarked)

	w = env.do(http.MethodGet, "/api/posts/search?query=E7&query=F", nil, reader.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "minor ii-V")

	w = env.do(http.MethodGet, "/api/posts/search", nil, reader.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "query is required", decode(t, w)["message"])

	w = env.do(http.MethodDelete, postPath, nil, reader.token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized access", decode(t, w)["message"])

	w = env.do(http.MethodDelete, "/api/posts/999", nil, author.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request", decode(t, w)["message"])

	w = env.do(http.MethodDelete, postPath, nil, author.token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, postPath+"/like", nil, reader.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "post does not exist", decode(t, w)["message"])

	w = env.do(http.MethodGet, "/api/posts/", nil, reader.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"posts":[]}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/posts/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListPosts_Pagination(t *testing.T) {
	env := setupHandlerTestEnv(t)
	s := env.signUp(t, "prolific", "prolific@example.com", "password123")

	for i := 1; i <= 12; i++ {
		w := env.do(http.MethodPost, "/api/posts/", map[string]interface{}{
			"description": fmt.Sprintf("post %d", i),
		}, s.token)
		require.Equal(t, http.StatusOK, w.Code)
	}

	count := func(query string) int {
		w := env.do(http.MethodGet, "/api/posts/"+query, nil, s.token)
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Posts []map[string]interface{} `json:"posts"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		return len(list.Posts)
	}

	assert.Equal(t, 10, count(""))
	assert.Equal(t, 2, count("?pageNumber=3&limit=5"))
	assert.Equal(t, 12, count("?limit=100"))
	assert.Equal(t, 10, count("?limit=0"))
	assert.Equal(t, 0, count("?pageNumber=5"))

	w := env.do(http.MethodGet, "/api/posts/?limit=1", nil, s.token)
	assert.Contains(t, w.Body.String(), "post 12")
}

func TestSubscriptionChanges(t *testing.T) {
	env := setupHandlerTestEnv(t)
	s := env.signUp(t, "subscriber", "subscriber@example.com", "password123")

	for _, path := range []string{"/api/users/cancel_subscription", "/api/users/continue_subscription"} {
		w := env.do(http.MethodPost, path, map[string]string{"subscriptionId": "sub_1"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		// provider failures are not surfaced
		w = env.do(http.MethodPost, path, map[string]string{"subscriptionId": "sub_1"}, s.token)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
	}
}

func TestSystemRoutes(t *testing.T) {
	env := setupHandlerTestEnv(t)

	w := env.do(http.MethodGet, "/health", nil, "")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = env.do(http.MethodGet, "/api/socket/", nil, "")
	assert.JSONEq(t, `{"webSocketUrl":"wss://socket.example.com"}`, w.Body.String())

	w = env.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apollo_http_requests_total")
}
