package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormscope/ormscope/internal/errs"
	"github.com/ormscope/ormscope/internal/validation"
)

type echoRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (r *echoRequest) Validate() error {
	return validation.Struct(r)
}

type emptyRequest struct{}

func (r *emptyRequest) Validate() error {
	return nil
}

func newEchoRequest() *echoRequest   { return &echoRequest{} }
func newEmptyRequest() *emptyRequest { return &emptyRequest{} }

func jsonPost(body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	return e.NewContext(req, rec), rec
}

func TestHandleWritesJSON(t *testing.T) {
	hf := Handle(Handler{}, func(c echo.Context, req *echoRequest) (map[string]string, error) {
		return map[string]string{"greeting": "hello " + req.Name}, nil
	}, http.StatusCreated, newEchoRequest)

	c, rec := jsonPost(`{"name":"jdoe"}`)
	require.NoError(t, hf(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"greeting":"hello jdoe"}`, rec.Body.String())
}

func TestHandleValidationFailure(t *testing.T) {
	called := false
	hf := Handle(Handler{}, func(c echo.Context, req *echoRequest) (map[string]string, error) {
		called = true

		return nil, nil
	}, http.StatusOK, newEchoRequest)

	c, rec := jsonPost(`{"name":""}`)
	err := hf(c)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "Validation failed", httpErr.Message)
	assert.False(t, called, "the typed handler must not run for an invalid payload")
	assert.Empty(t, rec.Body.String(), "the error funnel owns the response")
}

func TestHandleMalformedBody(t *testing.T) {
	hf := Handle(Handler{}, func(c echo.Context, req *echoRequest) (map[string]string, error) {
		return nil, nil
	}, http.StatusOK, newEchoRequest)

	c, _ := jsonPost(`{"name":`)
	err := hf(c)

	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "Malformed request payload", httpErr.Message)
}

func TestHandlePropagatesHandlerError(t *testing.T) {
	boom := pkgerrors.New("backend exploded")
	hf := Handle(Handler{}, func(c echo.Context, req *emptyRequest) (map[string]string, error) {
		return nil, boom
	}, http.StatusOK, newEmptyRequest)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/users/1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := hf(c)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.Body.String())
}

func TestHandleNoContent(t *testing.T) {
	hf := HandleNoContent(Handler{}, func(c echo.Context, req *emptyRequest) error {
		return nil
	}, http.StatusNoContent, newEmptyRequest)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/users/7", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, hf(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandleFile(t *testing.T) {
	csv := []byte("id,login\n1,jdoe\n")
	hf := HandleFile(Handler{}, func(c echo.Context, req *emptyRequest) ([]byte, error) {
		return csv, nil
	}, http.StatusOK, newEmptyRequest, "users.csv", "text/csv")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/users/batch/1/export", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, hf(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=users.csv", rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Equal(t, csv, rec.Body.Bytes())
}

func TestHandleFreshPayloadPerRequest(t *testing.T) {
	var seen []echoRequest
	hf := Handle(Handler{}, func(c echo.Context, req *echoRequest) (map[string]string, error) {
		seen = append(seen, *req)

		return map[string]string{}, nil
	}, http.StatusOK, newEchoRequest)

	c, _ := jsonPost(`{"name":"first","email":"first@example.com"}`)
	require.NoError(t, hf(c))

	c, _ = jsonPost(`{"name":"second"}`)
	require.NoError(t, hf(c))

	require.Len(t, seen, 2)
	assert.Equal(t, "first@example.com", seen[0].Email)
	assert.Equal(t, "", seen[1].Email, "a later request must not inherit fields from an earlier binding")
}
