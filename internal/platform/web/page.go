// Package web renders portal pages as JSON documents and carries flash
// messages across redirects.
package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcore/hospital/pkg/formerr"
)

// Page is the response body of every portal view.
type Page struct {
	View     string            `json:"view"`
	Data     interface{}       `json:"data,omitempty"`
	Messages []Message         `json:"messages"`
	Errors   *formerr.Errors   `json:"errors,omitempty"`
	Input    map[string]string `json:"input,omitempty"`
}

// Render writes view with data and any pending flash messages.
func Render(c echo.Context, status int, view string, data interface{}) error {
	return c.JSON(status, &Page{
		View:     view,
		Data:     data,
		Messages: PopFlashes(c),
	})
}

// RenderInvalid re-renders a form view with its validation messages and the
// submitted input echoed back.
func RenderInvalid(c echo.Context, view string, data interface{}, errs *formerr.Errors) error {
	return c.JSON(http.StatusUnprocessableEntity, &Page{
		View:     view,
		Data:     data,
		Messages: PopFlashes(c),
		Errors:   errs,
		Input:    FormInput(c),
	})
}

// RenderFormError renders err as an invalid form when it carries form
// messages and returns it unchanged otherwise.
func RenderFormError(c echo.Context, view string, data interface{}, err error) error {
	if fe, ok := formerr.As(err); ok {
		return RenderInvalid(c, view, data, fe)
	}
	return err
}

// Redirect issues a 303 so browsers follow with GET after a form post.
func Redirect(c echo.Context, path string) error {
	return c.Redirect(http.StatusSeeOther, path)
}

func RedirectWithFlash(c echo.Context, path string, level Level, text string) error {
	AddFlash(c, level, text)
	return Redirect(c, path)
}

// FormInput returns the submitted form values, first value per field.
// Password fields are never echoed.
func FormInput(c echo.Context) map[string]string {
	params, err := c.FormParams()
	if err != nil || len(params) == 0 {
		return nil
	}
	input := make(map[string]string, len(params))
	for k, v := range params {
		if strings.Contains(strings.ToLower(k), "password") || len(v) == 0 {
			continue
		}
		input[k] = v[0]
	}
	return input
}

// UUIDParam parses a path parameter, answering 404 for malformed ids.
func UUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return id, nil
}

// IsHTTPError reports whether err is an echo error with the given status.
func IsHTTPError(err error, status int) bool {
	var he *echo.HTTPError
	return errors.As(err, &he) && he.Code == status
}
