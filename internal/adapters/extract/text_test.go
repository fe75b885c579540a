package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"E-TRANSFER  from: SMITH, JOHN", "e transfer from smith john"},
		{"Payment #A1B2 (retainer)", "payment a1b2 retainer"},
		{"   ", ""},
		{"ABC Limo Service", "abc limo service"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeText(tc.raw), "raw=%q", tc.raw)
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"e", "transfer", "smith"}, Tokens("e transfer smith"))
	assert.Nil(t, Tokens(""))
}

func TestContainsEither(t *testing.T) {
	// Containment is symmetric and gated on the shorter side's length.
	assert.True(t, ContainsEither("smith john", "e transfer from smith john", 4))
	assert.True(t, ContainsEither("e transfer from smith john", "smith john", 4))
	assert.False(t, ContainsEither("jo", "e transfer from smith john", 4))
	assert.False(t, ContainsEither("", "anything", 1))
	assert.False(t, ContainsEither("smith", "jones", 4))
}

func TestExtractReferenceCodes(t *testing.T) {
	codes := ExtractReferenceCodes("CHQ 004481 auth: 9X7K2 for order #ab12")
	assert.Equal(t, []string{"004481", "9X7K2", "AB12"}, codes)

	assert.Nil(t, ExtractReferenceCodes(""))
	assert.Nil(t, ExtractReferenceCodes("no codes here"))
}

func TestExtractReferenceCodes_Deduplicates(t *testing.T) {
	codes := ExtractReferenceCodes("ref 12345 and again 12345")
	assert.Equal(t, []string{"12345"}, codes)
}
