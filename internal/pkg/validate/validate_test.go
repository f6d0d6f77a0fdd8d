package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=4"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(&sample{Email: "a@b.com", Password: "abc"}))
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(&sample{Email: "nope", Password: "toolong"})
	require.Error(t, err)

	var fe Errors
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, Errors{
		{Field: "email", Rule: "email"},
		{Field: "password", Rule: "max"},
	}, fe)
	assert.Equal(t, "field 'email' failed 'email'; field 'password' failed 'max'", err.Error())
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("ada@x.com"))
	assert.False(t, IsEmail("Ada"))
	assert.False(t, IsEmail(""))
}
