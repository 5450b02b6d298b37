// Package environment reads typed configuration values from environment
// variables.
//
// A Reader collects every malformed or missing value instead of stopping at
// the first one, so a misconfigured deployment reports all of its problems
// at once:
//
//	env := environment.New()
//	addr := env.String("HTTP_ADDR", "")
//	ceiling := env.Int("HISTORY_CEILING", 60)
//	if err := env.Err(); err != nil {
//	    return err
//	}
package environment

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Reader looks up variables and records conversion errors.
type Reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// New returns a Reader over the process environment.
func New() *Reader {
	return &Reader{lookup: os.LookupEnv}
}

// FromMap returns a Reader over m.
func FromMap(m map[string]string) *Reader {
	return &Reader{lookup: func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}}
}

// value returns the trimmed value of name; empty counts as unset.
func (r *Reader) value(name string) (string, bool) {
	v, ok := r.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *Reader) fail(name, v string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", name, v, err))
}

// String returns name's value, or def when unset or empty.
func (r *Reader) String(name, def string) string {
	if v, ok := r.value(name); ok {
		return v
	}
	return def
}

// Required returns name's value and records an error when it is unset.
func (r *Reader) Required(name string) string {
	v, ok := r.value(name)
	if !ok {
		r.errs = append(r.errs, fmt.Errorf("%s is required", name))
	}
	return v
}

// Int parses name as a positive decimal integer.
func (r *Reader) Int(name string, def int) int {
	v, ok := r.value(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(name, v, err)
		return def
	}
	if n <= 0 {
		r.fail(name, v, errors.New("must be positive"))
		return def
	}
	return n
}

// Duration parses name with time.ParseDuration ("5s", "1m30s").
func (r *Reader) Duration(name string, def time.Duration) time.Duration {
	v, ok := r.value(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(name, v, err)
		return def
	}
	if d <= 0 {
		r.fail(name, v, errors.New("must be positive"))
		return def
	}
	return d
}

// Bool parses name with strconv.ParseBool.
func (r *Reader) Bool(name string, def bool) bool {
	v, ok := r.value(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(name, v, err)
		return def
	}
	return b
}

// List splits name on commas, dropping blank elements.
func (r *Reader) List(name string) []string {
	v, ok := r.value(name)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Location loads name as an IANA zone ("Asia/Seoul"). "Local" and "UTC"
// are accepted.
func (r *Reader) Location(name string, def *time.Location) *time.Location {
	v, ok := r.value(name)
	if !ok {
		return def
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		r.fail(name, v, err)
		return def
	}
	return loc
}

// OneOf returns name's value when it is one of allowed, else def and an
// error. Comparison is case-insensitive; the result is lower case.
func (r *Reader) OneOf(name, def string, allowed ...string) string {
	v, ok := r.value(name)
	if !ok {
		return def
	}
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	r.fail(name, v, fmt.Errorf("must be one of %s", strings.Join(allowed, ", ")))
	return def
}

// Err joins every error recorded so far, or returns nil.
func (r *Reader) Err() error {
	return errors.Join(r.errs...)
}
