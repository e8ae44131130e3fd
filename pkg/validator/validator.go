package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/leebenson/conform"
)

var (
	valid Validator
	once  sync.Once
)

// Validator валидатор. Инициализируется через NewValidator
type Validator struct {
	validator *validator.Validate
}

// NewValidator конструктор валидатора Validator
func NewValidator() *Validator {
	v := Validator{
		validator: validator.New(),
	}

	// Регистрируем внешние валидаторы
	if err := v.validator.RegisterValidation("printeraddr", validatorPrinterAddr); err != nil {
		panic(err)
	}
	if err := v.validator.RegisterValidation("searchtype", validatorSearchType); err != nil {
		panic(err)
	}

	return &v
}

// Validate валидация структуры (строки предварительно нормализуются)
func (m *Validator) Validate(i interface{}) error {
	if err := conform.Strings(i); err != nil {
		return err
	}
	return m.validator.Struct(i)
}

// ValidateVar валидация отдельного значения по тегу tag
func (m *Validator) ValidateVar(field interface{}, tag string) error {
	return m.validator.Var(field, tag)
}

// Get единожды инициализирует и возвращает валидатор
func Get() *Validator {
	once.Do(func() {
		valid = *NewValidator()
	})
	return &valid
}
