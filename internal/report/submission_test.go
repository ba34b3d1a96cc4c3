package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubmission() Submission {
	return Submission{
		Name:        "Mario Rossi",
		Email:       "mario@example.it",
		Category:    "Illuminazione",
		Description: "Lampione spento",
		Photo:       &Photo{Filename: "pic.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0xe0}},
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"trims", "  hello \n", 10, "hello"},
		{"removes NUL", "he\x00llo", 10, "hello"},
		{"truncates by rune", "àèìòù", 3, "àèì"},
		{"truncates after trim", "   abcdef", 3, "abc"},
		{"drops invalid utf8", "ok\xffok", 10, "okok"},
		{"normalizes to NFC", "é", 10, "é"},
		{"zero max keeps all", "abc", 0, "abc"},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, tt.max))
		})
	}
}

func TestNormalizeAppliesFieldLimits(t *testing.T) {
	sub := Submission{
		Name:        strings.Repeat("n", MaxName+10),
		Email:       " a@b.it ",
		Description: strings.Repeat("d", MaxDescription+1),
		Lat:         strings.Repeat("1", MaxCoordinate+5),
		Timestamp:   strings.Repeat("t", MaxTimestamp+5),
	}
	got := sub.Normalize()
	assert.Len(t, got.Name, MaxName)
	assert.Equal(t, "a@b.it", got.Email)
	assert.Len(t, got.Description, MaxDescription)
	assert.Len(t, got.Lat, MaxCoordinate)
	assert.Len(t, got.Timestamp, MaxTimestamp)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Submission)
		field   string
		message string
	}{
		{"missing name", func(s *Submission) { s.Name = "" }, "name", "Nome obbligatorio"},
		{"bad email", func(s *Submission) { s.Email = "not-an-email" }, "email", "Email non valida"},
		{"email without tld", func(s *Submission) { s.Email = "a@b" }, "email", "Email non valida"},
		{"missing category", func(s *Submission) { s.Category = "" }, "category", "Categoria obbligatoria"},
		{"missing description", func(s *Submission) { s.Description = "" }, "description", "Descrizione obbligatoria"},
		{"missing photo", func(s *Submission) { s.Photo = nil }, "photo", "Foto obbligatoria"},
		{"empty photo", func(s *Submission) { s.Photo = &Photo{} }, "photo", "Foto obbligatoria"},
		{"first failure wins", func(s *Submission) { s.Name = ""; s.Photo = nil }, "name", "Nome obbligatorio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.mutate(&sub)
			err := sub.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.message, verr.Message)
		})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validSubmission().Validate())
	})
}

func TestIsEmailValid(t *testing.T) {
	assert.True(t, IsEmailValid("x@y.z"))
	assert.True(t, IsEmailValid("first.last+tag@sub.example.org"))
	assert.False(t, IsEmailValid(""))
	assert.False(t, IsEmailValid("a b@c.d"))
	assert.False(t, IsEmailValid("a@@c.d"))
	assert.False(t, IsEmailValid("@c.d"))
}
