package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testSettings struct {
	Endpoint string `validate:"required,url"`
	Port     int    `validate:"gte=1,lte=65535"`
	Format   string `validate:"oneof=json console"`
	Nested   struct {
		Prefix string `validate:"startswith=/"`
	}
}

func validSettings() testSettings {
	s := testSettings{
		Endpoint: "https://issuer.example.com/.well-known/jwks.json",
		Port:     9010,
		Format:   "json",
	}
	s.Nested.Prefix = "/functions"
	return s
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := validSettings()

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		s := validSettings()
		s.Endpoint = ""

		err := ValidateStruct(&s)
		assert.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "testSettings.Endpoint is required", fields["testSettings.Endpoint"])
	})

	t.Run("invalid URL", func(t *testing.T) {
		s := validSettings()
		s.Endpoint = "not a url"

		err := ValidateStruct(&s)
		assert.True(t, IsValidationError(err))
		assert.Contains(t, err.Error(), "must be a valid URL")
	})

	t.Run("multiple failures are all reported", func(t *testing.T) {
		s := validSettings()
		s.Port = 0
		s.Format = "xml"
		s.Nested.Prefix = "functions"

		err := ValidateStruct(&s)
		fields := GetValidationFields(err)
		assert.Len(t, fields, 3)
		assert.Contains(t, fields, "testSettings.Nested.Prefix")
		assert.Contains(t, err.Error(), "must be one of: json console")
		assert.Contains(t, err.Error(), "must start with /")
	})
}

func TestValidateStructEnvNames(t *testing.T) {
	type envSettings struct {
		URL     string `env:"JWKS_URL" validate:"required"`
		Retries int    `env:"MAX_RETRIES" validate:"gte=1"`
		Inner   struct {
			Level string `validate:"required"`
		}
	}

	err := ValidateStruct(&envSettings{})
	fields := GetValidationFields(err)
	assert.Equal(t, "JWKS_URL is required", fields["JWKS_URL"])
	assert.Equal(t, "MAX_RETRIES must be greater than or equal to 1", fields["MAX_RETRIES"])
	assert.Equal(t, "envSettings.Inner.Level is required", fields["envSettings.Inner.Level"])
}

func TestGetValidationFields(t *testing.T) {
	assert.Nil(t, GetValidationFields(errors.New("plain")))
	assert.False(t, IsValidationError(errors.New("plain")))
}
