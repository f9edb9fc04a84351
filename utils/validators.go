package utils

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"main/model"
)

var Validate *validator.Validate

func InitValidator() {
	Validate = validator.New()
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("hashtag", ValidateHashtagRule)
		v.RegisterValidation("recurrence", ValidateRecurrenceRule)
	}
}

// ValidateHashtagRule rejects tags with whitespace or embedded '#'
func ValidateHashtagRule(fl validator.FieldLevel) bool {
	return ValidateHashtag(fl.Field().String())
}

func ValidateHashtag(tag string) bool {
	if tag == "" || len(tag) > 30 {
		return false
	}
	trimmed := strings.TrimPrefix(tag, "#")
	if trimmed == "" || strings.Contains(trimmed, "#") {
		return false
	}
	return !strings.ContainsAny(trimmed, " \t\n")
}

// ValidateRecurrenceRule accepts the known recurrence rules
func ValidateRecurrenceRule(fl validator.FieldLevel) bool {
	return model.ValidRecurrenceRule(model.RecurrenceRule(fl.Field().String()))
}
