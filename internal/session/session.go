// Package session implements the client-side session and data-access
// layer of the greenhouse directory application. A Session is the single
// writer of the current-user state and the cached user list; consumers
// read them through snapshot accessors and invoke the exposed operations.
//
// Every network-backed operation records a failure into the last-error
// state and returns the error, leaving presentation entirely to callers.
// Mutating operations (create, update, delete) are always followed by a
// full refresh of the user list; the list is wholesale-replaced, never
// merged.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	validator "github.com/go-playground/validator/v10"

	"github.com/greenhouse-mgmt/usrdir/internal/apiclient"
	"github.com/greenhouse-mgmt/usrdir/internal/credstore"
	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

// Routes the session directs its navigator to after auth transitions.
const (
	RouteHome  = "/home"
	RouteLogin = "/login"
)

// Fixed keys of the persisted credential record.
const (
	tokenKey = "auth_token"
	userKey  = "user_data"
)

// ErrValidation marks a request rejected client-side before any network
// call was made.
var ErrValidation = errors.New("invalid input")

type requester interface {
	Do(ctx context.Context, method, endpoint string, body any, token string, out any) error
}

// Navigator receives the navigation directives issued after successful
// login and register calls and after logout.
type Navigator interface {
	Navigate(route string)
}

// NopNavigator ignores navigation directives. It suits consumers without
// a screen flow, such as tests and one-shot CLI commands.
type NopNavigator struct{}

// Navigate implements Navigator.
func (NopNavigator) Navigate(route string) {}

// Session holds the authenticated user, the cached user list, and the
// loading/error flags, and exposes the directory operations.
type Session struct {
	api      requester
	store    credstore.Store
	nav      Navigator
	validate *validator.Validate

	mu      sync.Mutex
	token   string
	user    *models.User
	users   []models.User
	loading bool
	lastErr string
	loadSeq uint64
}

// New returns a Session backed by the given API client, credential store
// and navigator. The session starts Unauthenticated; call Restore to pick
// up a persisted credential record.
func New(api requester, store credstore.Store, nav Navigator) *Session {
	return &Session{
		api:      api,
		store:    store,
		nav:      nav,
		validate: validator.New(),
	}
}

// Restore reads the persisted credential record and, when both the token
// and the user snapshot are present, enters the Authenticated state
// without a network call. An absent record is not an error.
func (s *Session) Restore(ctx context.Context) error {
	token, tokenFound, err := s.store.Get(ctx, tokenKey)
	if err != nil {
		return s.fail(err)
	}

	raw, userFound, err := s.store.Get(ctx, userKey)
	if err != nil {
		return s.fail(err)
	}

	if !tokenFound || !userFound {
		return nil
	}

	var usr models.User
	if err := json.Unmarshal([]byte(raw), &usr); err != nil {
		return s.fail(fmt.Errorf("broken credential record: %w", err))
	}

	s.mu.Lock()
	s.token = token
	s.user = &usr
	s.mu.Unlock()

	return nil
}

// Login authenticates against the directory server. On success it
// persists the credential record, sets the current user, and navigates
// home. On failure the prior session state is left untouched.
func (s *Session) Login(ctx context.Context, email, password string) error {
	request := models.LoginRequest{
		Email:    email,
		Password: password,
	}
	if err := s.checkRequest(request); err != nil {
		return err
	}

	var authResponse models.AuthResponse
	if err := s.do(ctx, http.MethodPost, "/login", request, false, &authResponse); err != nil {
		return err
	}

	return s.enterAuthenticated(ctx, authResponse)
}

// Register creates a new account. On success it behaves like Login:
// the session is populated, persisted, and navigation goes home.
func (s *Session) Register(ctx context.Context, name, email, password, phone string) error {
	request := models.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: password,
		Phone:    phone,
	}
	if err := s.checkRequest(request); err != nil {
		return err
	}

	var authResponse models.AuthResponse
	if err := s.do(ctx, http.MethodPost, "/register", request, false, &authResponse); err != nil {
		return err
	}

	return s.enterAuthenticated(ctx, authResponse)
}

// Logout clears the in-memory session first, so the caller always ends
// up Unauthenticated with an empty user list, then removes the persisted
// credential record and navigates to the login entry point. A removal
// failure is recorded and returned, but the in-memory state stays
// cleared.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.users = nil
	s.mu.Unlock()

	errToken := s.store.Remove(ctx, tokenKey)
	errUser := s.store.Remove(ctx, userKey)

	s.nav.Navigate(RouteLogin)

	if errToken != nil {
		return s.fail(errToken)
	}
	if errUser != nil {
		return s.fail(errUser)
	}

	return nil
}

// LoadUsers fetches the user collection and wholesale-replaces the cached
// list with the result. A response belonging to a fetch that has been
// superseded by a newer LoadUsers call is discarded instead of
// overwriting fresher data.
func (s *Session) LoadUsers(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	var usersResponse models.UsersResponse
	if err := s.do(ctx, http.MethodGet, "/users", nil, true, &usersResponse); err != nil {
		return err
	}

	s.mu.Lock()
	if seq == s.loadSeq {
		s.users = usersResponse.Users
	}
	s.mu.Unlock()

	return nil
}

// CreateUser creates a directory record and refreshes the user list.
// There is no optimistic local insert.
func (s *Session) CreateUser(ctx context.Context, name, email, phone, password string) error {
	request := models.CreateUserRequest{
		Name:     name,
		Email:    email,
		Phone:    phone,
		Password: password,
	}
	if err := s.checkRequest(request); err != nil {
		return err
	}

	var userResponse models.UserResponse
	if err := s.do(ctx, http.MethodPost, "/users", request, true, &userResponse); err != nil {
		return err
	}

	return s.LoadUsers(ctx)
}

// UpdateUser updates the record with the given identifier. An empty
// password means "keep the current one" and is omitted from the payload.
// When the updated identifier matches the current user, the session's
// own snapshot is replaced and re-persisted. The user list is refreshed
// afterward either way.
func (s *Session) UpdateUser(ctx context.Context, id int, name, email, phone, password string) error {
	request := models.UpdateUserRequest{
		Name:     name,
		Email:    email,
		Phone:    phone,
		Password: password,
	}
	if err := s.checkRequest(request); err != nil {
		return err
	}

	var userResponse models.UserResponse
	endpoint := fmt.Sprintf("/users/%d", id)
	if err := s.do(ctx, http.MethodPut, endpoint, request, true, &userResponse); err != nil {
		return err
	}

	s.mu.Lock()
	isCurrent := s.user != nil && s.user.ID == id
	token := s.token
	s.mu.Unlock()

	if isCurrent {
		if err := s.saveCredentials(ctx, token, userResponse.User); err != nil {
			return s.fail(err)
		}

		s.mu.Lock()
		updated := userResponse.User
		s.user = &updated
		s.mu.Unlock()
	}

	return s.LoadUsers(ctx)
}

// DeleteUser removes the record with the given identifier and refreshes
// the user list. Deleting the current user's own record is not
// special-cased.
func (s *Session) DeleteUser(ctx context.Context, id int) error {
	endpoint := fmt.Sprintf("/users/%d", id)
	if err := s.do(ctx, http.MethodDelete, endpoint, nil, true, nil); err != nil {
		return err
	}

	return s.LoadUsers(ctx)
}

// ClearError resets the last-error state. It is a pure local mutation.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

// CurrentUser returns a copy of the authenticated user, or nil when the
// session is Unauthenticated.
func (s *Session) CurrentUser() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return nil
	}
	usr := *s.user

	return &usr
}

// Users returns a copy of the cached user list as of the last successful
// fetch.
func (s *Session) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, len(s.users))
	copy(users, s.users)

	return users
}

// IsAuthenticated reports whether a current user is present.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.user != nil
}

// Loading reports whether a network-backed operation is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// LastError returns the recorded message of the most recent failure,
// or an empty string.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Token returns the bearer token of the authenticated session.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.token
}

// do funnels a request through the API client, maintaining the loading
// flag and recording any failure.
func (s *Session) do(
	ctx context.Context,
	method string,
	endpoint string,
	body any,
	authenticated bool,
	out any,
) error {
	s.mu.Lock()
	s.loading = true
	token := ""
	if authenticated {
		token = s.token
	}
	s.mu.Unlock()

	err := s.api.Do(ctx, method, endpoint, body, token, out)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = errorMessage(err)
	}
	s.mu.Unlock()

	return err
}

// enterAuthenticated persists the credential record, then installs the
// user and token into the session and navigates home. Persisting first
// keeps the invariant that a non-nil current user implies a stored
// credential record.
func (s *Session) enterAuthenticated(ctx context.Context, authResponse models.AuthResponse) error {
	if err := s.saveCredentials(ctx, authResponse.Token, authResponse.User); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.token = authResponse.Token
	usr := authResponse.User
	s.user = &usr
	s.mu.Unlock()

	s.nav.Navigate(RouteHome)

	return nil
}

func (s *Session) saveCredentials(ctx context.Context, token string, usr models.User) error {
	raw, err := json.Marshal(usr)
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, tokenKey, token); err != nil {
		return err
	}

	return s.store.Set(ctx, userKey, string(raw))
}

func (s *Session) checkRequest(request any) error {
	if err := s.validate.Struct(request); err != nil {
		return s.fail(fmt.Errorf("%w: %v", ErrValidation, err))
	}

	return nil
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.lastErr = errorMessage(err)
	s.mu.Unlock()

	return err
}

// errorMessage maps an error to the user-facing text recorded into the
// last-error state. Connectivity failures collapse to the generic
// "could not reach server" wording.
func errorMessage(err error) string {
	if errors.Is(err, apiclient.ErrServerUnavailable) {
		return apiclient.ErrServerUnavailable.Error()
	}

	return err.Error()
}
