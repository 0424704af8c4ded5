package validator

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

const minPasswordLength = 6

func init() {
	// Initialize validation
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("username", validateUsername)
	_ = validate.RegisterValidation("password", validatePassword)
}

func GetValidator() *validator.Validate {
	return validate
}

// validateUsername accepts 3 to 20 letters, digits or underscores.
func validateUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

// validatePassword requires at least one letter and one digit.
func validatePassword(fl validator.FieldLevel) bool {
	pw := fl.Field().String()
	if len(pw) < minPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// Describe turns validation failures into a single readable error. Other
// errors are returned unchanged.
func Describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "username":
		return errors.New("username must be 3-20 letters, digits or underscores")
	case "password":
		return fmt.Errorf("password must be at least %d characters with a letter and a digit", minPasswordLength)
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Errorf("%s is invalid", fe.Field())
}
