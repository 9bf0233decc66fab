package handler

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ormscope/ormscope/internal/format"
	"github.com/ormscope/ormscope/internal/middleware"
	"github.com/ormscope/ormscope/internal/models"
	"github.com/ormscope/ormscope/internal/orm"
	"github.com/ormscope/ormscope/internal/scope"
	"github.com/ormscope/ormscope/internal/server"
	"github.com/ormscope/ormscope/internal/validation"
)

// UserHandler serves the user CRUD endpoints. All of its routes run
// behind the scope middleware, so each handler reads an open
// transaction and any pre-resolved record parameters from the echo
// context instead of opening its own.
type UserHandler struct {
	Handler
	users  *models.UserModel
	format *format.Formatter
}

// NewUserHandler constructs a UserHandler with access to shared app dependencies.
func NewUserHandler(s *server.Server) *UserHandler {
	return &UserHandler{
		Handler: NewHandler(s),
		users:   s.Models.Users,
		format:  format.New(s.Models.Langs),
	}
}

// UserResponse is the JSON shape of a single user. Created is rendered
// with the date format of the negotiated language.
type UserResponse struct {
	ID       int64    `json:"id"`
	Login    string   `json:"login"`
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Active   bool     `json:"active"`
	Groups   []string `json:"groups"`
	Language string   `json:"language,omitempty"`
	Created  string   `json:"created"`
}

// GetUserRequest is empty; the user id comes from the route parameter.
type GetUserRequest struct{}

func (r *GetUserRequest) Validate() error { return nil }

// GetUser returns one user, resolved from the :user route parameter by
// the scope middleware.
func (h *UserHandler) GetUser(c echo.Context, req *GetUserRequest) (*UserResponse, error) {
	tx, err := scope.TxFrom(c)
	if err != nil {
		return nil, err
	}

	user, err := scope.RecordFrom(c, "user")
	if err != nil {
		return nil, err
	}

	return h.userResponse(user, h.language(c, tx)), nil
}

// BatchUsersRequest is empty; the ids come from the :users route parameter.
type BatchUsersRequest struct{}

func (r *BatchUsersRequest) Validate() error { return nil }

// BatchUsersResponse wraps a batch lookup result.
type BatchUsersResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
}

// BatchUsers returns several users at once, in the order their ids
// were given in the :users route parameter.
func (h *UserHandler) BatchUsers(c echo.Context, req *BatchUsersRequest) (*BatchUsersResponse, error) {
	tx, err := scope.TxFrom(c)
	if err != nil {
		return nil, err
	}

	users, err := scope.RecordsFrom(c, "users")
	if err != nil {
		return nil, err
	}

	lang := h.language(c, tx)

	response := &BatchUsersResponse{
		Users: make([]*UserResponse, len(users)),
		Total: len(users),
	}
	for i, user := range users {
		response.Users[i] = h.userResponse(user, lang)
	}

	return response, nil
}

// CreateUserRequest carries the payload for creating a user. Payload
// shape is checked here; business rules (unique login, known language)
// live in the model and come back as domain errors.
type CreateUserRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=64"`
	Name     string `json:"name" validate:"required,min=1,max=255"`
	Email    string `json:"email" validate:"omitempty,email"`
	Language string `json:"language" validate:"omitempty,min=2,max=16"`
}

func (r *CreateUserRequest) Validate() error { return validation.Struct(r) }

// CreateUser inserts a new user. The commit, and the hand-off of the
// queued search index task, happen in the scope middleware after this
// returns.
func (h *UserHandler) CreateUser(c echo.Context, req *CreateUserRequest) (*UserResponse, error) {
	tx, err := scope.TxFrom(c)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Create(c.Request().Context(), tx, models.CreateUserInput{
		Login:    req.Login,
		Name:     req.Name,
		Email:    req.Email,
		Language: req.Language,
	})
	if err != nil {
		return nil, err
	}

	middleware.GetLogger(c).Info().
		Int64("user_id", user.ID()).
		Str("login", user.String("login")).
		Msg("user created")

	return h.userResponse(user, h.language(c, tx)), nil
}

// DeleteUserRequest is empty; the user id comes from the route parameter.
type DeleteUserRequest struct{}

func (r *DeleteUserRequest) Validate() error { return nil }

// DeleteUser removes a user. Protected accounts are refused by the
// model with a domain error, which surfaces as a 400.
func (h *UserHandler) DeleteUser(c echo.Context, req *DeleteUserRequest) error {
	tx, err := scope.TxFrom(c)
	if err != nil {
		return err
	}

	user, err := scope.RecordFrom(c, "user")
	if err != nil {
		return err
	}

	if err := h.users.Delete(c.Request().Context(), tx, user); err != nil {
		return err
	}

	middleware.GetLogger(c).Info().
		Int64("user_id", user.ID()).
		Msg("user deleted")

	return nil
}

// ExportUsersRequest is empty; the ids come from the :users route parameter.
type ExportUsersRequest struct{}

func (r *ExportUsersRequest) Validate() error { return nil }

// ExportUsers renders the selected users as a CSV download.
func (h *UserHandler) ExportUsers(c echo.Context, req *ExportUsersRequest) ([]byte, error) {
	tx, err := scope.TxFrom(c)
	if err != nil {
		return nil, err
	}

	users, err := scope.RecordsFrom(c, "users")
	if err != nil {
		return nil, err
	}

	lang := h.language(c, tx)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{{"id", "login", "name", "email", "active", "groups", "created"}}
	for _, user := range users {
		groups, _ := user.Get("groups").([]string)
		rows = append(rows, []string{
			strconv.FormatInt(user.ID(), 10),
			user.String("login"),
			user.String("name"),
			user.String("email"),
			strconv.FormatBool(user.Bool("active")),
			strings.Join(groups, ";"),
			format.FormatDate(user.Time("created_at"), lang),
		})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, errors.Wrap(err, "writing users csv")
	}

	return buf.Bytes(), nil
}

// language negotiates the response language from the transaction
// context and the Accept-Language header. Formatting falls back to
// defaults when no language record can be loaded, so failures here are
// logged but never fail the request.
func (h *UserHandler) language(c echo.Context, tx *orm.Tx) *orm.Record {
	ctx := c.Request().Context()

	code, err := h.format.Language(ctx, tx, c.Request().Header.Get("Accept-Language"))
	if err != nil {
		middleware.GetLogger(c).Debug().Err(err).Msg("language negotiation failed")
		return nil
	}

	lang, err := h.format.Lang(ctx, tx, code)
	if err != nil {
		middleware.GetLogger(c).Debug().Err(err).Str("language", code).Msg("language lookup failed")
		return nil
	}

	return lang
}

func (h *UserHandler) userResponse(user *orm.Record, lang *orm.Record) *UserResponse {
	groups, _ := user.Get("groups").([]string)

	return &UserResponse{
		ID:       user.ID(),
		Login:    user.String("login"),
		Name:     user.String("name"),
		Email:    user.String("email"),
		Active:   user.Bool("active"),
		Groups:   groups,
		Language: user.String("language"),
		Created:  format.FormatDate(user.Time("created_at"), lang),
	}
}
