package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)
	return validate, translator
}

func TestTranslateValidationErrors(t *testing.T) {
	validate, translator := newValidator()

	type payload struct {
		Content string `json:"content" validate:"required,notblank"`
		Reason  string `json:"reason" validate:"notblank"`
	}

	err := TranslateValidationErrors(validate.Struct(payload{Reason: "  "}), translator)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.ElementsMatch(t, []FieldError{
		{Field: "content", Error: "this field is required"},
		{Field: "reason", Error: "this field cannot be blank"},
	}, vErr.Fields)

	other := errors.New("boom")
	assert.Equal(t, other, TranslateValidationErrors(other, translator))
	assert.NoError(t, validate.Struct(payload{Content: "hi", Reason: "ok"}))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{s: "hello", n: 10, want: "hello"},
		{s: "hello world", n: 8, want: "hello..."},
		{s: "héllo", n: 2, want: "hé"},
		{s: "hello", n: 0, want: "hello"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.s, tt.n))
	}
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "", "b", "a", "c", "b"}))
	assert.Empty(t, Unique(nil))
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("integrity issue"), "handling")))
	assert.False(t, IsShutdown(errors.New("boom")))
}
