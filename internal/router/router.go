// Package router wires the greenhouse directory API endpoints to the
// application service and translates its errors into HTTP responses.
// Error payloads always carry the message under the "error" field.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/greenhouse-mgmt/usrdir/internal/gzippedhttp"
	"github.com/greenhouse-mgmt/usrdir/internal/ipchecker"
	"github.com/greenhouse-mgmt/usrdir/internal/logger"
	"github.com/greenhouse-mgmt/usrdir/internal/models"
	"github.com/greenhouse-mgmt/usrdir/internal/service"
)

type directoryService interface {
	Register(ctx context.Context, request models.RegisterRequest) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, request models.CreateUserRequest) (*models.User, error)
	UpdateUser(ctx context.Context, id int, request models.UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, id int) error
	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type authorizer interface {
	BuildToken(userID int) (string, error)
	Authenticate(h http.Handler) http.Handler
}

type pinger interface {
	Ping(ctx context.Context) error
}

type handlers struct {
	svc       directoryService
	auth      authorizer
	db        pinger
	ipChecker *ipchecker.IPChecker
	validate  *validator.Validate
}

// New assembles the chi router with the logging, gzip and authentication
// middleware and every API endpoint.
func New(
	svc directoryService,
	auth authorizer,
	db pinger,
	ipChecker *ipchecker.IPChecker,
) http.Handler {
	h := &handlers{
		svc:       svc,
		auth:      auth,
		db:        db,
		ipChecker: ipChecker,
		validate:  validator.New(),
	}

	router := chi.NewRouter()
	router.Use(logger.WithLoggingHTTPMiddleware)
	router.Use(gzippedhttp.UngzipRequest)
	router.Use(gzippedhttp.GzipResponse)

	router.Get(`/ping`, h.getPing)

	router.Route(`/api`, func(api chi.Router) {
		api.Post(`/register`, h.postRegister)
		api.Post(`/login`, h.postLogin)
		api.Get(`/internal/stats`, h.getInternalStats)

		api.Route(`/users`, func(users chi.Router) {
			users.Use(auth.Authenticate)
			users.Get(`/`, h.getUsers)
			users.Post(`/`, h.postUsers)
			users.Put(`/{userID}`, h.putUser)
			users.Delete(`/{userID}`, h.deleteUser)
		})
	})

	return router
}

func (h *handlers) postRegister(response http.ResponseWriter, request *http.Request) {
	registerRequest := models.RegisterRequest{}
	if !h.decodeAndValidate(response, request, &registerRequest) {
		return
	}

	usr, err := h.svc.Register(request.Context(), registerRequest)
	if err != nil {
		h.writeServiceError(response, err)
		return
	}

	h.writeAuthResponse(response, http.StatusCreated, usr)
}

func (h *handlers) postLogin(response http.ResponseWriter, request *http.Request) {
	loginRequest := models.LoginRequest{}
	if !h.decodeAndValidate(response, request, &loginRequest) {
		return
	}

	usr, err := h.svc.Authenticate(request.Context(), loginRequest.Email, loginRequest.Password)
	if err != nil {
		h.writeServiceError(response, err)
		return
	}

	h.writeAuthResponse(response, http.StatusOK, usr)
}

func (h *handlers) getUsers(response http.ResponseWriter, request *http.Request) {
	users, err := h.svc.ListUsers(request.Context())
	if err != nil {
		h.writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.UsersResponse{Users: users})
}

func (h *handlers) postUsers(response http.ResponseWriter, request *http.Request) {
	createRequest := models.CreateUserRequest{}
	if !h.decodeAndValidate(response, request, &createRequest) {
		return
	}

	usr, err := h.svc.CreateUser(request.Context(), createRequest)
	if err != nil {
		h.writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, models.UserResponse{User: *usr})
}

func (h *handlers) putUser(response http.ResponseWriter, request *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(request, "userID"))
	if err != nil {
		writeError(response, http.StatusBadRequest, "invalid user id")
		return
	}

	updateRequest := models.UpdateUserRequest{}
	if !h.decodeAndValidate(response, request, &updateRequest) {
		return
	}

	usr, err := h.svc.UpdateUser(request.Context(), userID, updateRequest)
	if err != nil {
		h.writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.UserResponse{User: *usr})
}

func (h *handlers) deleteUser(response http.ResponseWriter, request *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(request, "userID"))
	if err != nil {
		writeError(response, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.svc.DeleteUser(request.Context(), userID); err != nil {
		h.writeServiceError(response, err)
		return
	}

	response.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getPing(response http.ResponseWriter, request *http.Request) {
	if err := h.db.Ping(request.Context()); err != nil {
		logger.Log.Debugln("error calling the `h.db.Ping()`:", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

func (h *handlers) getInternalStats(response http.ResponseWriter, request *http.Request) {
	if h.ipChecker.IsTrustedSubnetEmpty() {
		response.WriteHeader(http.StatusForbidden)
		return
	}

	clientIP, err := h.ipChecker.GetClientIP(request)
	if err != nil || !h.ipChecker.Check(clientIP) {
		response.WriteHeader(http.StatusForbidden)
		return
	}

	usersCount, err := h.svc.GetNumberOfUsers(request.Context())
	if err != nil {
		h.writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, models.StatsResponse{Users: usersCount})
}

// decodeAndValidate decodes the JSON request body into target and runs
// its validate tags, writing a 400 response on failure.
func (h *handlers) decodeAndValidate(
	response http.ResponseWriter,
	request *http.Request,
	target any,
) bool {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		writeError(response, http.StatusBadRequest, "malformed JSON body")
		return false
	}

	if err := h.validate.Struct(target); err != nil {
		writeError(response, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

func (h *handlers) writeAuthResponse(response http.ResponseWriter, status int, usr *models.User) {
	token, err := h.auth.BuildToken(usr.ID)
	if err != nil {
		logger.Log.Debugln("error calling the `h.auth.BuildToken()`:", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(response, status, models.AuthResponse{
		Token: token,
		User:  *usr,
	})
}

func (h *handlers) writeServiceError(response http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(response, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrEmailTaken):
		writeError(response, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrUserNotFound):
		writeError(response, http.StatusNotFound, err.Error())
	default:
		logger.Log.Debugln("service error:", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(response http.ResponseWriter, status int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)

	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("error writing the JSON response:", zap.Error(err))
	}
}

func writeError(response http.ResponseWriter, status int, message string) {
	writeJSON(response, status, map[string]string{"error": message})
}
