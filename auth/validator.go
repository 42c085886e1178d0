package auth

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// TokenRequest is the body of POST /token.
type TokenRequest struct {
	Room     string `json:"room" validate:"required,max=128,printable"`
	Identity string `json:"identity" validate:"required,max=128,printable"`
	Name     string `json:"name,omitempty" validate:"max=128,printable"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails on an empty tag or a nil func.
	_ = v.RegisterValidation("printable", func(fl validator.FieldLevel) bool {
		return isPrintable(fl.Field().String())
	})
	return v
}

// ValidateTokenRequest trims the request and checks it.
func ValidateTokenRequest(req TokenRequest) (TokenRequest, error) {
	req.Room = strings.TrimSpace(req.Room)
	req.Identity = strings.TrimSpace(req.Identity)
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return TokenRequest{}, err
	}
	return req, nil
}

func isPrintable(s string) bool {
	for _, char := range s {
		if !unicode.IsPrint(char) {
			return false
		}
	}
	return true
}
