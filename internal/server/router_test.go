package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openshelf/librarium/internal/auth"
	"github.com/openshelf/librarium/internal/catalog"
	"github.com/openshelf/librarium/internal/session"
	"github.com/openshelf/librarium/internal/users"
)

const (
	testCookieName   = "librarium_session"
	testBcryptCost   = 4
	testStateSecret  = "router-test-state-secret"
	testPassword     = "correct horse battery"
	testRegisterPath = "/auth/register"
	testLoginPath    = "/auth/login"
)

var testDatabaseSequence atomic.Int64

type stubGitHubAuthenticator struct {
	identity auth.ProviderIdentity
	err      error
}

func (s *stubGitHubAuthenticator) AuthCodeURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (s *stubGitHubAuthenticator) Exchange(_ context.Context, _ string) (auth.ProviderIdentity, error) {
	return s.identity, s.err
}

type routerFixture struct {
	handler http.Handler
	github  *stubGitHubAuthenticator
	state   *auth.StateSigner
	repo    *users.Repository
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", testDatabaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &session.Session{}, &catalog.Author{}, &catalog.Book{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	repo, err := users.NewRepository(users.RepositoryConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	store, err := session.NewGormStore(db)
	if err != nil {
		t.Fatalf("failed to create session store: %v", err)
	}
	sessions, err := session.NewManager(session.ManagerConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	authService, err := auth.NewService(auth.ServiceConfig{
		Repository: repo,
		Sessions:   sessions,
		Hasher:     auth.NewHasher(testBcryptCost),
	})
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}
	resolver, err := auth.NewResolver(auth.ResolverConfig{
		Repository: repo,
		Sessions:   sessions,
	})
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}
	state, err := auth.NewStateSigner(auth.StateSignerConfig{
		SigningSecret: []byte(testStateSecret),
	})
	if err != nil {
		t.Fatalf("failed to create state signer: %v", err)
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		IDProvider: catalog.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create catalog service: %v", err)
	}

	github := &stubGitHubAuthenticator{}
	handler, err := NewHTTPHandler(Dependencies{
		Auth:     authService,
		Resolver: resolver,
		GitHub:   github,
		State:    state,
		Sessions: sessions,
		Catalog:  catalogService,
		Users:    repo,
		Cookie:   CookieConfig{Name: testCookieName, TTL: time.Hour},
	})
	if err != nil {
		t.Fatalf("failed to create http handler: %v", err)
	}

	return &routerFixture{handler: handler, github: github, state: state, repo: repo}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == testCookieName {
			return cookie
		}
	}
	t.Fatalf("expected response to set the %s cookie", testCookieName)
	return nil
}

func (f *routerFixture) register(t *testing.T, username, email string) string {
	t.Helper()
	recorder := f.do(t, http.MethodPost, testRegisterPath, map[string]string{
		"username": username,
		"email":    email,
		"password": testPassword,
	}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", recorder.Code, recorder.Body.String())
	}
	userID, _ := decodeBody(t, recorder)["userId"].(string)
	if userID == "" {
		t.Fatalf("register response missing userId: %s", recorder.Body.String())
	}
	return userID
}

func (f *routerFixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	recorder := f.do(t, http.MethodPost, testLoginPath, map[string]string{
		"email":    email,
		"password": testPassword,
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", recorder.Code, recorder.Body.String())
	}
	return sessionCookie(t, recorder)
}

func TestHealthEndpoint(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/health", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	fixture := newRouterFixture(t)

	request := httptest.NewRequest(http.MethodPost, testRegisterPath, bytes.NewReader([]byte("not json")))
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestRegisterThenLoginEstablishesSession(t *testing.T) {
	fixture := newRouterFixture(t)
	userID := fixture.register(t, "alice", "alice@example.com")
	cookie := fixture.login(t, "alice@example.com")

	recorder := fixture.do(t, http.MethodGet, "/auth/profile", nil, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("profile returned %d: %s", recorder.Code, recorder.Body.String())
	}
	profile := decodeBody(t, recorder)
	if profile["id"] != userID || profile["email"] != "alice@example.com" {
		t.Fatalf("unexpected profile payload: %v", profile)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.register(t, "alice", "alice@example.com")

	recorder := fixture.do(t, http.MethodPost, testLoginPath, map[string]string{
		"email":    "alice@example.com",
		"password": "wrong password",
	}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.register(t, "alice", "alice@example.com")

	recorder := fixture.do(t, http.MethodPost, testRegisterPath, map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": testPassword,
	}, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.register(t, "alice", "alice@example.com")
	cookie := fixture.login(t, "alice@example.com")

	recorder := fixture.do(t, http.MethodPost, "/auth/logout", nil, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("logout returned %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = fixture.do(t, http.MethodGet, "/auth/profile", nil, cookie)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", recorder.Code)
	}
}

func TestProfileRequiresAuthentication(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/auth/profile", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestGitHubRedirectCarriesVerifiableState(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/auth/github", nil, nil)
	if recorder.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", recorder.Code)
	}
	location, err := url.Parse(recorder.Header().Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect location: %v", err)
	}
	state := location.Query().Get("state")
	if state == "" {
		t.Fatalf("redirect location %q missing state", location)
	}
	if err := fixture.state.Verify(state); err != nil {
		t.Fatalf("redirect state failed verification: %v", err)
	}
}

func TestGitHubCallbackCreatesFederatedAccount(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.github.identity = auth.ProviderIdentity{
		ExternalID:  "gh-42",
		Handle:      "alice-gh",
		DisplayName: "Alice Example",
		Email:       "alice@example.com",
	}

	state, err := fixture.state.Issue()
	if err != nil {
		t.Fatalf("failed to issue state: %v", err)
	}
	recorder := fixture.do(t, http.MethodGet, "/auth/github/callback?state="+url.QueryEscape(state)+"&code=grant", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("callback returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["outcome"] != string(auth.OutcomeCreated) {
		t.Fatalf("expected created outcome, got %v", payload["outcome"])
	}

	cookie := sessionCookie(t, recorder)
	recorder = fixture.do(t, http.MethodGet, "/auth/profile", nil, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("profile after callback returned %d", recorder.Code)
	}
	profile := decodeBody(t, recorder)
	if profile["authProvider"] != string(users.ProviderGitHub) {
		t.Fatalf("expected github provider, got %v", profile["authProvider"])
	}
}

func TestGitHubCallbackLinksLocalAccountByEmail(t *testing.T) {
	fixture := newRouterFixture(t)
	userID := fixture.register(t, "alice", "alice@example.com")
	fixture.github.identity = auth.ProviderIdentity{
		ExternalID: "gh-42",
		Handle:     "alice-gh",
		Email:      "alice@example.com",
	}

	state, err := fixture.state.Issue()
	if err != nil {
		t.Fatalf("failed to issue state: %v", err)
	}
	recorder := fixture.do(t, http.MethodGet, "/auth/github/callback?state="+url.QueryEscape(state)+"&code=grant", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("callback returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["outcome"] != string(auth.OutcomeLinked) {
		t.Fatalf("expected linked outcome, got %v", payload["outcome"])
	}
	user, ok := payload["user"].(map[string]any)
	if !ok || user["id"] != userID {
		t.Fatalf("expected callback to resolve user %s, got %v", userID, payload["user"])
	}

	// Linking must not break the password credential.
	fixture.login(t, "alice@example.com")
}

func TestGitHubCallbackRejectsProviderError(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/auth/github/callback?error=access_denied", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestGitHubCallbackRejectsForgedState(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/auth/github/callback?state=forged&code=grant", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestGitHubCallbackRequiresAuthorizationCode(t *testing.T) {
	fixture := newRouterFixture(t)

	state, err := fixture.state.Issue()
	if err != nil {
		t.Fatalf("failed to issue state: %v", err)
	}
	recorder := fixture.do(t, http.MethodGet, "/auth/github/callback?state="+url.QueryEscape(state), nil, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestCatalogReadsAreAnonymous(t *testing.T) {
	fixture := newRouterFixture(t)

	for _, path := range []string{"/authors", "/books"} {
		recorder := fixture.do(t, http.MethodGet, path, nil, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("GET %s returned %d", path, recorder.Code)
		}
	}
}

func TestCatalogWritesRequireAuthentication(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/authors", map[string]string{"name": "Someone"}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	recorder = fixture.do(t, http.MethodPut, "/books/some-id", map[string]string{"title": "Renamed"}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestDeleteReportsUnauthenticatedBeforeForbidden(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodDelete, "/authors/some-id", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous delete, got %d", recorder.Code)
	}

	fixture.register(t, "alice", "alice@example.com")
	cookie := fixture.login(t, "alice@example.com")
	recorder = fixture.do(t, http.MethodDelete, "/authors/some-id", nil, cookie)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin delete, got %d", recorder.Code)
	}
}

func TestAdminCanManageCatalog(t *testing.T) {
	fixture := newRouterFixture(t)
	userID := fixture.register(t, "admin", "admin@example.com")
	if err := fixture.repo.Patch(context.Background(), userID, map[string]any{"role": users.RoleAdmin}); err != nil {
		t.Fatalf("failed to promote user: %v", err)
	}
	cookie := fixture.login(t, "admin@example.com")

	recorder := fixture.do(t, http.MethodPost, "/authors", catalog.AuthorInput{
		Name:  "Ursula K. Le Guin",
		Email: "ursula@example.com",
	}, cookie)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("author create returned %d: %s", recorder.Code, recorder.Body.String())
	}
	authorID, _ := decodeBody(t, recorder)["authorId"].(string)
	if authorID == "" {
		t.Fatalf("author create response missing authorId")
	}

	recorder = fixture.do(t, http.MethodDelete, "/authors/"+authorID, nil, cookie)
	if recorder.Code != http.StatusOK {
		t.Fatalf("author delete returned %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = fixture.do(t, http.MethodGet, "/authors/"+authorID, nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", recorder.Code)
	}
}

func TestCatalogFailureResponsesIncludeServiceErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ginContext, _ := gin.CreateTestContext(recorder)
	ginContext.Request = httptest.NewRequest(http.MethodGet, "/authors", nil)

	handler := &httpHandler{
		catalog: &catalog.Service{},
		logger:  zap.NewNop(),
	}
	handler.handleListAuthors(ginContext)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["code"] != "catalog.list_authors.missing_database" {
		t.Fatalf("expected service error code, got %v", payload["code"])
	}
}

func TestBookWritesVerifyReferencedAuthor(t *testing.T) {
	fixture := newRouterFixture(t)
	fixture.register(t, "alice", "alice@example.com")
	cookie := fixture.login(t, "alice@example.com")

	recorder := fixture.do(t, http.MethodPost, "/books", catalog.BookInput{
		Title:    "Orphaned",
		AuthorID: "missing-author",
		ISBN:     "978-0-000-00000-0",
	}, cookie)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing author, got %d: %s", recorder.Code, recorder.Body.String())
	}
}
