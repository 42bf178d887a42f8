package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,notblank,max=255"`
	Password string `json:"password" validate:"required"`
}

type ticketQuery struct {
	Status string `json:"status" validate:"omitempty,oneof=open closed all"`
	Page   int    `json:"page" validate:"gte=0,lte=10000"`
	Internal string
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(loginRequest{Username: "jdoe", Password: "secret"}))
	assert.NoError(t, Validate(ticketQuery{Status: "open", Page: 2}))
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := Validate(loginRequest{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["username"])
	assert.Equal(t, "is required", fields["password"])
	assert.Contains(t, err.Error(), "field 'username'")
}

func TestValidate_NotBlank(t *testing.T) {
	err := Validate(loginRequest{Username: "   ", Password: "x"})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must not be blank", valErr.Fields()["username"])
}

func TestValidate_OneOfAndRange(t *testing.T) {
	err := Validate(ticketQuery{Status: "pending", Page: 20000})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be one of: open closed all", fields["status"])
	assert.Contains(t, fields["page"], "10000")
}

func TestDecodeAndValidate(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"jdoe","password":"pw"}`))
	var dst loginRequest
	require.NoError(t, DecodeAndValidate(r, &dst))
	assert.Equal(t, "jdoe", dst.Username)

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":`))
	err := DecodeAndValidate(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"a","password":"b","admin":true}`))
	err = DecodeAndValidate(r, &loginRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"","password":"b"}`))
	err = DecodeAndValidate(r, &loginRequest{})
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}
