package session

import (
	"errors"
	"reflect"
	"strings"

	"courtbook/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ParticipantInput is the add-player form.
type ParticipantInput struct {
	Name    string      `json:"name"`
	Surname string      `json:"surname"`
	Email   string      `json:"email"`
	Role    models.Role `json:"role"`
}

type guestFields struct {
	Name    string `json:"name" validate:"required,max=100"`
	Surname string `json:"surname" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email"`
}

type memberFields struct {
	Name    string `json:"name" validate:"required,max=100"`
	Surname string `json:"surname" validate:"max=100"`
	Email   string `json:"email" validate:"omitempty,email"`
}

type organizerFields struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
}

// Normalize trims the input and defaults the role to member.
func (in ParticipantInput) Normalize() ParticipantInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = models.RoleMember
	}
	return in
}

func (in ParticipantInput) Validate() error {
	switch in.Role {
	case models.RoleGuest:
		return ValidateStruct(guestFields{Name: in.Name, Surname: in.Surname, Email: in.Email})
	case models.RoleMember:
		return ValidateStruct(memberFields{Name: in.Name, Surname: in.Surname, Email: in.Email})
	case models.RoleOrganizer:
		return invalidField("role", "oneof", "role must be member or guest")
	default:
		return invalidField("role", "oneof", "role must be member or guest")
	}
}

func validateOrganizer(p models.Participant) error {
	return ValidateStruct(organizerFields{Name: p.DisplayName, Email: p.Email})
}

// ValidateStruct runs struct-tag validation and converts failures to ValidationErrors.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: errorMessage(fe),
		})
	}
	return out
}

func errorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return err.Field() + " must be a valid email address"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	default:
		return err.Field() + " is invalid"
	}
}
