package crud

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"minitter/errs"
)

// validate checks the struct tag rules of the incoming forms. It reports
// fields by their json name, which is also the name used in error responses.
var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// signupForm holds the rules every signup field has to satisfy before
// any of the more specific user validations run.
type signupForm struct {
	Username             string `json:"username" validate:"required,max=150"`
	Email                string `json:"email" validate:"required"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

// tweetForm holds the rules of a tweet's content.
type tweetForm struct {
	Content string `json:"content" validate:"required,max=280"`
}

// checkForm runs the struct tag rules of form and returns one errs.FieldError
// per violated rule, combined with multierr.
func checkForm(form interface{}) error {
	err := validate.Struct(form)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var result error
	for _, fe := range verrs {
		result = multierr.Append(result, errs.Field(fe.Field(), ruleMessage(fe)))
	}
	return result
}

// ruleMessage returns the user facing message of a failed struct tag rule.
func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		n := utf8.RuneCountInString(fmt.Sprint(fe.Value()))
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), n)
	}
	return fmt.Sprintf("This value does not satisfy the %q rule.", fe.Tag())
}
