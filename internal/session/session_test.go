package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenhouse-mgmt/usrdir/internal/apiclient"
	"github.com/greenhouse-mgmt/usrdir/internal/credstore"
	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

type navRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (n *navRecorder) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *navRecorder) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.routes...)
}

// fakeAPI is a scripted stand-in for the directory server. It counts the
// requests per "METHOD path" key and serves canned responses.
type fakeAPI struct {
	mu        sync.Mutex
	requests  map[string]int
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		requests:  map[string]int{},
		responses: map[string]fakeResponse{},
	}
}

func (f *fakeAPI) respond(method, path string, status int, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = fakeResponse{status: status, body: body}
}

func (f *fakeAPI) requestCount(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method+" "+path]
}

func (f *fakeAPI) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	key := request.Method + " " + request.URL.Path

	f.mu.Lock()
	f.requests[key]++
	canned, found := f.responses[key]
	f.mu.Unlock()

	if !found {
		response.WriteHeader(http.StatusNotFound)
		return
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(canned.status)
	if canned.body != nil {
		err := json.NewEncoder(response).Encode(canned.body)
		if err != nil {
			panic(err)
		}
	}
}

func newTestSession(t *testing.T, api *fakeAPI) (*Session, *navRecorder, credstore.Store) {
	t.Helper()

	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	nav := &navRecorder{}
	store := credstore.NewMemoryStore()
	sess := New(apiclient.New(server.URL, 5*time.Second), store, nav)

	return sess, nav, store
}

func TestLoginSuccess(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodPost, "/login", http.StatusOK, models.AuthResponse{
		Token: "token-1",
		User:  models.User{ID: 1, Name: "Ana", Email: "ana@x.com"},
	})

	sess, nav, store := newTestSession(t, api)

	err := sess.Login(context.Background(), "ana@x.com", "secret1")
	require.NoError(t, err)

	assert.True(t, sess.IsAuthenticated())
	require.NotNil(t, sess.CurrentUser())
	assert.Equal(t, "ana@x.com", sess.CurrentUser().Email)
	assert.Equal(t, "token-1", sess.Token())
	assert.Equal(t, []string{RouteHome}, nav.Routes())

	storedToken, found, err := store.Get(context.Background(), "auth_token")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "token-1", storedToken)

	storedUser, found, err := store.Get(context.Background(), "user_data")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, storedUser, `"ana@x.com"`)
}

func TestLoginServerRejection(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodPost, "/login", http.StatusUnauthorized, map[string]string{
		"error": "invalid email or password",
	})

	sess, nav, _ := newTestSession(t, api)

	err := sess.Login(context.Background(), "ana@x.com", "wrong-pass")
	require.Error(t, err)

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	assert.False(t, sess.IsAuthenticated())
	assert.Nil(t, sess.CurrentUser())
	assert.Equal(t, "invalid email or password", sess.LastError())
	assert.Empty(t, nav.Routes())
}

func TestLoginValidationSkipsNetwork(t *testing.T) {
	api := newFakeAPI()

	sess, _, _ := newTestSession(t, api)

	err := sess.Login(context.Background(), "not-an-email", "secret1")
	require.ErrorIs(t, err, ErrValidation)
	assert.NotEmpty(t, sess.LastError())

	assert.Zero(t, api.requestCount(http.MethodPost, "/login"))
}

func TestRegisterThenLogout(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodPost, "/register", http.StatusCreated, models.AuthResponse{
		Token: "token-2",
		User:  models.User{ID: 3, Name: "Ana", Email: "ana@x.com"},
	})

	sess, nav, store := newTestSession(t, api)

	err := sess.Register(context.Background(), "Ana", "ana@x.com", "secret1", "")
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentUser())
	assert.Equal(t, "ana@x.com", sess.CurrentUser().Email)

	err = sess.Logout(context.Background())
	require.NoError(t, err)

	assert.Nil(t, sess.CurrentUser())
	assert.Empty(t, sess.Users())
	assert.False(t, sess.IsAuthenticated())
	assert.Equal(t, []string{RouteHome, RouteLogin}, nav.Routes())

	_, found, err := store.Get(context.Background(), "auth_token")
	require.NoError(t, err)
	assert.False(t, found)
}

type removeFailingStore struct {
	credstore.Store
}

func (s *removeFailingStore) Remove(ctx context.Context, key string) error {
	return errors.New("disk is gone")
}

func TestLogoutClearsStateEvenWhenStoreFails(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodPost, "/login", http.StatusOK, models.AuthResponse{
		Token: "token-1",
		User:  models.User{ID: 1, Name: "Ana", Email: "ana@x.com"},
	})

	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	store := &removeFailingStore{Store: credstore.NewMemoryStore()}
	sess := New(apiclient.New(server.URL, 5*time.Second), store, NopNavigator{})

	require.NoError(t, sess.Login(context.Background(), "ana@x.com", "secret1"))
	require.True(t, sess.IsAuthenticated())

	err := sess.Logout(context.Background())
	require.Error(t, err)

	assert.False(t, sess.IsAuthenticated())
	assert.Nil(t, sess.CurrentUser())
	assert.Empty(t, sess.Users())
	assert.Equal(t, "disk is gone", sess.LastError())
}

func TestLoadUsersWholesaleReplace(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodGet, "/users", http.StatusOK, models.UsersResponse{
		Users: []models.User{
			{ID: 1, Name: "Ana", Email: "ana@x.com"},
			{ID: 2, Name: "Bob", Email: "bob@x.com"},
		},
	})

	sess, _, _ := newTestSession(t, api)

	require.NoError(t, sess.LoadUsers(context.Background()))
	require.Len(t, sess.Users(), 2)

	api.respond(http.MethodGet, "/users", http.StatusOK, models.UsersResponse{
		Users: []models.User{
			{ID: 2, Name: "Bob", Email: "bob@x.com"},
		},
	})

	require.NoError(t, sess.LoadUsers(context.Background()))

	users := sess.Users()
	require.Len(t, users, 1)
	assert.Equal(t, 2, users[0].ID)
}

// scriptedRequester lets a test interleave a nested LoadUsers call while
// an older fetch is still in flight.
type scriptedRequester struct {
	do func(ctx context.Context, method, endpoint string, body any, token string, out any) error
}

func (r *scriptedRequester) Do(
	ctx context.Context,
	method string,
	endpoint string,
	body any,
	token string,
	out any,
) error {
	return r.do(ctx, method, endpoint, body, token, out)
}

func TestStaleLoadUsersResponseDiscarded(t *testing.T) {
	staleUsers := []models.User{{ID: 1, Name: "Stale", Email: "stale@x.com"}}
	freshUsers := []models.User{{ID: 2, Name: "Fresh", Email: "fresh@x.com"}}

	var sess *Session
	firstCall := true

	requester := &scriptedRequester{}
	requester.do = func(ctx context.Context, method, endpoint string, body any, token string, out any) error {
		usersResponse := out.(*models.UsersResponse)
		if firstCall {
			firstCall = false
			// a newer fetch completes while this one is still in flight
			require.NoError(t, sess.LoadUsers(ctx))
			usersResponse.Users = staleUsers
			return nil
		}
		usersResponse.Users = freshUsers
		return nil
	}

	sess = New(requester, credstore.NewMemoryStore(), NopNavigator{})

	require.NoError(t, sess.LoadUsers(context.Background()))

	users := sess.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "Fresh", users[0].Name)
}

func TestCreateUserRefreshesList(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodPost, "/users", http.StatusCreated, models.UserResponse{
		User: models.User{ID: 5, Name: "Eva", Email: "eva@x.com"},
	})
	api.respond(http.MethodGet, "/users", http.StatusOK, models.UsersResponse{
		Users: []models.User{{ID: 5, Name: "Eva", Email: "eva@x.com"}},
	})

	sess, _, _ := newTestSession(t, api)

	err := sess.CreateUser(context.Background(), "Eva", "eva@x.com", "", "secret1")
	require.NoError(t, err)

	assert.Equal(t, 1, api.requestCount(http.MethodGet, "/users"))
	require.Len(t, sess.Users(), 1)
	assert.Equal(t, "eva@x.com", sess.Users()[0].Email)
}

func TestCreateUserWithoutPasswordRejectedClientSide(t *testing.T) {
	api := newFakeAPI()

	sess, _, _ := newTestSession(t, api)

	err := sess.CreateUser(context.Background(), "Eva", "eva@x.com", "", "")
	require.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, api.requestCount(http.MethodPost, "/users"))
	assert.Zero(t, api.requestCount(http.MethodGet, "/users"))
}

func TestUpdateUserReplacesCurrentUserAndSnapshot(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodPost, "/login", http.StatusOK, models.AuthResponse{
		Token: "token-1",
		User:  models.User{ID: 1, Name: "Ana", Email: "ana@x.com"},
	})
	api.respond(http.MethodPut, "/users/1", http.StatusOK, models.UserResponse{
		User: models.User{ID: 1, Name: "Ana Maria", Email: "ana@x.com", Phone: "555"},
	})
	api.respond(http.MethodGet, "/users", http.StatusOK, models.UsersResponse{
		Users: []models.User{{ID: 1, Name: "Ana Maria", Email: "ana@x.com", Phone: "555"}},
	})

	sess, _, store := newTestSession(t, api)
	require.NoError(t, sess.Login(context.Background(), "ana@x.com", "secret1"))

	err := sess.UpdateUser(context.Background(), 1, "Ana Maria", "ana@x.com", "555", "")
	require.NoError(t, err)

	require.NotNil(t, sess.CurrentUser())
	assert.Equal(t, "Ana Maria", sess.CurrentUser().Name)
	assert.Equal(t, "555", sess.CurrentUser().Phone)

	users := sess.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "Ana Maria", users[0].Name)

	storedUser, found, err := store.Get(context.Background(), "user_data")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, storedUser, "Ana Maria")
}

func TestUpdateOtherUserKeepsCurrentUser(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodPost, "/login", http.StatusOK, models.AuthResponse{
		Token: "token-1",
		User:  models.User{ID: 1, Name: "Ana", Email: "ana@x.com"},
	})
	api.respond(http.MethodPut, "/users/2", http.StatusOK, models.UserResponse{
		User: models.User{ID: 2, Name: "Bob Jr", Email: "bob@x.com"},
	})
	api.respond(http.MethodGet, "/users", http.StatusOK, models.UsersResponse{
		Users: []models.User{
			{ID: 1, Name: "Ana", Email: "ana@x.com"},
			{ID: 2, Name: "Bob Jr", Email: "bob@x.com"},
		},
	})

	sess, _, _ := newTestSession(t, api)
	require.NoError(t, sess.Login(context.Background(), "ana@x.com", "secret1"))

	err := sess.UpdateUser(context.Background(), 2, "Bob Jr", "bob@x.com", "", "")
	require.NoError(t, err)

	require.NotNil(t, sess.CurrentUser())
	assert.Equal(t, "Ana", sess.CurrentUser().Name)
}

func TestDeleteUserRefreshesList(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodDelete, "/users/7", http.StatusNoContent, nil)
	api.respond(http.MethodGet, "/users", http.StatusOK, models.UsersResponse{
		Users: []models.User{{ID: 1, Name: "Ana", Email: "ana@x.com"}},
	})

	sess, _, _ := newTestSession(t, api)

	err := sess.DeleteUser(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, api.requestCount(http.MethodDelete, "/users/7"))
	for _, usr := range sess.Users() {
		assert.NotEqual(t, 7, usr.ID)
	}
}

func TestRestoreFromPersistedCredentials(t *testing.T) {
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "auth_token", "token-9"))
	raw, err := json.Marshal(models.User{ID: 9, Name: "Ana", Email: "ana@x.com"})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), "user_data", string(raw)))

	sess := New(&scriptedRequester{
		do: func(ctx context.Context, method, endpoint string, body any, token string, out any) error {
			t.Fatal("restore must not hit the network")
			return nil
		},
	}, store, NopNavigator{})

	require.NoError(t, sess.Restore(context.Background()))

	assert.True(t, sess.IsAuthenticated())
	require.NotNil(t, sess.CurrentUser())
	assert.Equal(t, 9, sess.CurrentUser().ID)
	assert.Equal(t, "token-9", sess.Token())
}

func TestRestoreWithoutCredentialsStaysUnauthenticated(t *testing.T) {
	sess := New(&scriptedRequester{}, credstore.NewMemoryStore(), NopNavigator{})

	require.NoError(t, sess.Restore(context.Background()))

	assert.False(t, sess.IsAuthenticated())
}

func TestConnectivityErrorMessage(t *testing.T) {
	requester := &scriptedRequester{
		do: func(ctx context.Context, method, endpoint string, body any, token string, out any) error {
			return fmt.Errorf("%w: dial tcp: connection refused", apiclient.ErrServerUnavailable)
		},
	}

	sess := New(requester, credstore.NewMemoryStore(), NopNavigator{})

	err := sess.LoadUsers(context.Background())
	require.ErrorIs(t, err, apiclient.ErrServerUnavailable)
	assert.Equal(t, "could not reach server", sess.LastError())
}

func TestClearError(t *testing.T) {
	api := newFakeAPI()
	api.respond(http.MethodGet, "/users", http.StatusInternalServerError, map[string]string{
		"error": "boom",
	})

	sess, _, _ := newTestSession(t, api)

	require.Error(t, sess.LoadUsers(context.Background()))
	require.Equal(t, "boom", sess.LastError())

	sess.ClearError()
	assert.Empty(t, sess.LastError())
}

func TestBearerTokenAttachedToAuthenticatedCalls(t *testing.T) {
	var authorization string

	server := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/users" {
			authorization = request.Header.Get("Authorization")
		}
		response.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(request.URL.Path, "/login"):
			err := json.NewEncoder(response).Encode(models.AuthResponse{
				Token: "token-42",
				User:  models.User{ID: 1, Name: "Ana", Email: "ana@x.com"},
			})
			require.NoError(t, err)
		default:
			err := json.NewEncoder(response).Encode(models.UsersResponse{Users: []models.User{}})
			require.NoError(t, err)
		}
	}))
	t.Cleanup(server.Close)

	sess := New(
		apiclient.New(server.URL, 5*time.Second),
		credstore.NewMemoryStore(),
		NopNavigator{},
	)

	require.NoError(t, sess.Login(context.Background(), "ana@x.com", "secret1"))
	require.NoError(t, sess.LoadUsers(context.Background()))

	assert.Equal(t, "Bearer token-42", authorization)
}
