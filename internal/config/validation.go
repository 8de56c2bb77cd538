package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/personabot/internal/errs"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints and the persona. The first violation is
// reported as a ConfigurationError naming the offending key.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			key := strings.TrimPrefix(fe.Namespace(), "Config.")
			return errs.NewConfigurationError(key, errors.New("failed '"+fe.Tag()+"' validation"))
		}
		return errs.NewConfigurationError("", err)
	}
	if err := c.Persona.Validate(); err != nil {
		return errs.NewConfigurationError("persona", err)
	}
	return nil
}

// IsHuman reports whether an author takes part in profile regeneration under
// the configured skip mode. In allowlist mode anyone not listed is treated as
// a bot and skipped; in denylist mode only listed names are skipped.
func (p ProfilesConfig) IsHuman(username string) bool {
	listed := false
	for _, u := range p.KnownHumans {
		if u == username {
			listed = true
			break
		}
	}
	if p.SkipMode == "denylist" {
		return !listed
	}
	return listed
}
