package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Validate runs the struct tag validations on config.
func Validate(config interface{}) error {
	validate := validator.New()
	return validate.Struct(config)
}

// LogValidationErrors logs every field error in err. Errors aggregated with go-multierror are logged one by one.
func LogValidationErrors(err error) {
	if merr, ok := err.(*multierror.Error); ok {
		for _, err := range merr.Errors {
			LogValidationErrors(err)
		}
		return
	}
	if err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			log.Errorf("ConfigError: %s", err)
			return
		}
		for _, err := range validationErrors {
			fieldName := stripPrefix(err.Namespace())
			tag := err.Tag()
			switch tag {
			case "required":
				log.Errorf("ConfigError: Field %s is required but was not found", fieldName)
			default:
				log.Errorf("ConfigError: Field %s has invalid value %s: %s", fieldName, err.Value(), tag)
			}
		}
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
