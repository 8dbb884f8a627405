package shared

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

var lettersOnly = regexp.MustCompile(`^[a-zA-Z]+$`)

// MaxPasswordBytes is the longest secret bcrypt accepts.
const MaxPasswordBytes = 72

// NewValidator builds the request validator with the custom tags used by the
// API: nondisposable, strongpassword, lettersonly, pastdate and maxbytes.
// Field errors report json names.
func NewValidator(disposableDomains []string) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	blocked := NewDisposableDomains(disposableDomains)
	_ = v.RegisterValidation("nondisposable", func(fl validator.FieldLevel) bool {
		return !blocked.Blocks(fl.Field().String())
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("lettersonly", func(fl validator.FieldLevel) bool {
		return lettersOnly.MatchString(fl.Field().String())
	})
	// max counts runes; maxbytes counts the UTF-8 bytes bcrypt sees.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	})
	_ = v.RegisterValidation("pastdate", func(fl validator.FieldLevel) bool {
		d, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil && d.Before(time.Now().UTC().Truncate(24*time.Hour))
	})
	return v
}

// StrongPassword requires an uppercase letter, a lowercase letter and a
// character that is neither a letter, a digit nor underscore.
func StrongPassword(p string) bool {
	var upper, lower, special bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_':
			special = true
		}
	}
	return upper && lower && special
}

// DisposableDomains blocks registrations from throwaway mail providers.
type DisposableDomains map[string]struct{}

// NewDisposableDomains builds the blocklist. Entries may be a provider name
// ("mailinator") or a full domain ("mailinator.com").
func NewDisposableDomains(domains []string) DisposableDomains {
	set := make(DisposableDomains, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// Blocks reports whether email belongs to a blocked provider. Both the full
// domain and the part between '@' and the last '.' are checked.
func (d DisposableDomains) Blocks(email string) bool {
	if len(d) == 0 {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	if _, ok := d[domain]; ok {
		return true
	}
	if dot := strings.LastIndex(domain, "."); dot > 0 {
		if _, ok := d[domain[:dot]]; ok {
			return true
		}
	}
	return false
}
