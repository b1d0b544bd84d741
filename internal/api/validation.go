package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/songs"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	maxNameLength     = 100
	minPasswordLength = 8
	// bcrypt only accepts passwords up to 72 bytes.
	maxPasswordBytes = 72
	passwordSpecials = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`
)

var (
	usernamePattern = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)
	namePattern     = regexp.MustCompile(`^[0-9A-Za-z .\-']+$`)
)

type registerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (req registerRequest) validate() error {
	v := &apperr.ValidationError{}
	switch n := utf8.RuneCountInString(req.Username); {
	case n < minUsernameLength || n > maxUsernameLength:
		v.Add("username", "must be 3-30 characters long")
	case !usernamePattern.MatchString(req.Username):
		v.Add("username", "may contain only letters, digits, underscores and hyphens")
	}
	switch n := utf8.RuneCountInString(req.Name); {
	case n < 1 || n > maxNameLength:
		v.Add("name", "must be 1-100 characters long")
	case !namePattern.MatchString(req.Name):
		v.Add("name", "may contain only letters, digits, spaces, periods, hyphens and apostrophes")
	case strings.TrimSpace(req.Name) == "":
		v.Add("name", "must not be only spaces")
	}
	if reason := passwordProblem(req.Password); reason != "" {
		v.Add("password", reason)
	}
	return v.OrNil()
}

func passwordProblem(password string) string {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "must be at least 8 characters long"
	}
	if len(password) > maxPasswordBytes {
		return "must be at most 72 bytes long"
	}
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return "must not contain whitespace"
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return "must contain a lowercase letter, an uppercase letter, a digit and a special character"
	}
	return ""
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req credentialsRequest) validate() error {
	v := &apperr.ValidationError{}
	if req.Username == "" {
		v.Add("username", "is required")
	}
	if req.Password == "" {
		v.Add("password", "is required")
	}
	return v.OrNil()
}

type ratingRequest struct {
	Rating *json.Number `json:"rating"`
}

func (req ratingRequest) value() (float64, error) {
	if req.Rating == nil {
		return 0, apperr.Invalid("rating", "is required")
	}
	f, err := req.Rating.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperr.Invalid("rating", "must be a finite number")
	}
	return f, nil
}

// parseListParams reads the /songs query string. Every problem is reported
// at once.
func parseListParams(query url.Values) (songs.ListParams, error) {
	params := songs.ListParams{Limit: songs.DefaultLimit}
	v := &apperr.ValidationError{}

	if values, ok := query["title"]; ok {
		title := ""
		if len(values) > 0 {
			title = values[0]
		}
		params.Title = &title
	}

	field, err := songs.ParseSortField(query.Get("order_by"))
	if err != nil {
		v.Add("order_by", "must be one of "+strings.Join(songs.SortFieldNames(), ", "))
	}
	params.OrderBy = field

	switch strings.ToLower(query.Get("order")) {
	case "", "asc":
	case "desc":
		params.Descending = true
	default:
		v.Add("order", "must be asc or desc")
	}

	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			v.Add("offset", "must be an integer")
		}
		params.Offset = n
	}
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			v.Add("limit", "must be an integer")
			n = songs.DefaultLimit
		}
		params.Limit = n
	}

	var more *apperr.ValidationError
	if errors.As(params.Validate(), &more) {
		for _, f := range more.Fields {
			if !hasField(v, f.Field) {
				v.Add(f.Field, f.Reason)
			}
		}
	}
	return params, v.OrNil()
}

func hasField(v *apperr.ValidationError, field string) bool {
	for _, f := range v.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// ValidateRegistration applies the registration field rules to input that
// does not arrive over HTTP.
func ValidateRegistration(username, name, password string) error {
	return registerRequest{Username: username, Name: name, Password: password}.validate()
}
