package report

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Field length limits, in runes, applied before validation.
const (
	MaxName        = 120
	MaxEmail       = 200
	MaxCategory    = 80
	MaxDescription = 4000
	MaxCoordinate  = 50
	MaxTimestamp   = 80
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Photo is the uploaded image attached to a report.
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is one citizen report as received from the intake form.
type Submission struct {
	Name        string
	Email       string
	Category    string
	Description string
	Lat         string
	Lon         string
	Accuracy    string
	Timestamp   string
	Photo       *Photo
}

// ValidationError carries the user-facing reason a submission was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// Sanitize strips NUL characters and invalid UTF-8, normalizes to NFC, trims surrounding
// whitespace and truncates to at most max runes.
func Sanitize(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)
	if max > 0 {
		if r := []rune(s); len(r) > max {
			s = string(r[:max])
		}
	}
	return s
}

// Normalize returns a copy with every text field sanitized to its length limit.
func (s Submission) Normalize() Submission {
	s.Name = Sanitize(s.Name, MaxName)
	s.Email = Sanitize(s.Email, MaxEmail)
	s.Category = Sanitize(s.Category, MaxCategory)
	s.Description = Sanitize(s.Description, MaxDescription)
	s.Lat = Sanitize(s.Lat, MaxCoordinate)
	s.Lon = Sanitize(s.Lon, MaxCoordinate)
	s.Accuracy = Sanitize(s.Accuracy, MaxCoordinate)
	s.Timestamp = Sanitize(s.Timestamp, MaxTimestamp)
	return s
}

// Validate checks required fields in form order and reports the first problem.
func (s Submission) Validate() error {
	switch {
	case s.Name == "":
		return &ValidationError{Field: "name", Message: "Nome obbligatorio"}
	case !IsEmailValid(s.Email):
		return &ValidationError{Field: "email", Message: "Email non valida"}
	case s.Category == "":
		return &ValidationError{Field: "category", Message: "Categoria obbligatoria"}
	case s.Description == "":
		return &ValidationError{Field: "description", Message: "Descrizione obbligatoria"}
	case s.Photo == nil || len(s.Photo.Data) == 0:
		return &ValidationError{Field: "photo", Message: "Foto obbligatoria"}
	}
	return nil
}

func IsEmailValid(email string) bool {
	return emailPattern.MatchString(email)
}
