package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// BindRequest fills req from path and query parameters, applies `default`
// tags and validates it. A nil result means req is usable.
func BindRequest(c echo.Context, req interface{}) []ValidationError {
	if err := defaults.Set(req); err != nil {
		return []ValidationError{{Code: "ERR_DEFAULTS", Message: err.Error()}}
	}
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
		}
		return []ValidationError{{Code: "ERR_BIND", Message: err.Error()}}
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(fes))
	for _, fe := range fes {
		ve := ValidationError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   fe.Field(),
			Message: describe(fe),
		}
		switch fe.Tag() {
		case "oneof":
			ve.Params = map[string]interface{}{"options": strings.Fields(fe.Param())}
		case "min", "gte":
			ve.Params = map[string]interface{}{"min": fe.Param()}
		case "max", "lte":
			ve.Params = map[string]interface{}{"max": fe.Param()}
		}
		out = append(out, ve)
	}
	return out
}

func describe(fe validator.FieldError) string {
	f, p := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return f + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", f, strings.Join(strings.Fields(p), ", "))
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", f, p)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", f, p)
	}
	return fmt.Sprintf("%s is invalid (%s)", f, fe.Tag())
}
