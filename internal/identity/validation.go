package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// cpfPattern accepts "000.000.000-00" or eleven bare digits.
var cpfPattern = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$|^\d{11}$`)

// Registration is a self-registration request.
type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	CPF      string `json:"cpf" validate:"required,cpf"`
	Position string `json:"position" validate:"max=100"`
	Photo    []byte `json:"-" validate:"required"`
}

// UserUpdate is a manager edit of a user. The enrolled face is kept.
type UserUpdate struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	CPF      string `json:"cpf" validate:"required,cpf"`
	Position string `json:"position" validate:"max=100"`
	Approved bool   `json:"approved"`
}

// NewManager is a manager creation request.
type NewManager struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return cpfPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic("register cpf validation: " + err.Error())
	}
	return v
}

// NormalizeCPF strips the punctuation of a formatted CPF.
func NormalizeCPF(cpf string) string {
	return strings.NewReplacer(".", "", "-", "").Replace(strings.TrimSpace(cpf))
}

// validationError converts validator output into an ErrInvalidInput error
// naming every failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
}
