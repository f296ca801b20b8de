package pipeline

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudemu/cloudemu/internal/cmn"
)

// Named patterns for the field kinds endpoint schemas validate. Bucket
// and instance names follow the provider's DNS-ish conventions; zones and
// regions are validated against the static catalogs by the services, so
// the patterns here only gate gross shape.
var (
	PatternProjectID    = regexp.MustCompile(`^[a-z][-a-z0-9]{4,28}[a-z0-9]$`)
	PatternBucketName   = regexp.MustCompile(`^[a-z0-9][-_.a-z0-9]{0,61}[a-z0-9]$`)
	PatternInstanceName = regexp.MustCompile(`^[a-z]([-a-z0-9]*[a-z0-9])?$`)
	PatternZone         = regexp.MustCompile(`^[a-z]+-[a-z0-9]+-[a-z]$`)
	PatternRegion       = regexp.MustCompile(`^[a-z]+-[a-z0-9]+$`)
	PatternEmail        = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	PatternCIDR         = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/\d{1,2}$`)

	// sqlInjection flags the classic quote/comment/stacked-statement
	// shapes; matched against every string field a schema validates.
	sqlInjection = regexp.MustCompile(`(?i)('|--|;|/\*|\bunion\s+select\b|\bdrop\s+table\b|\bor\s+1\s*=\s*1\b)`)
)

// FieldRule is one declarative constraint of an endpoint schema:
// required-ness, pattern, length bounds, numeric range, and enum
// membership.
type FieldRule struct {
	Name     string
	Required bool
	Pattern  *regexp.Regexp
	MinLen   int
	MaxLen   int
	Enum     []string
	IntMin   *int64
	IntMax   *int64
}

// Schema is the per-endpoint rule set. Validate aggregates every
// violation into one InvalidArgument whose message lists field-scoped
// problems, so a single 400 reports everything wrong with the request.
type Schema struct {
	Fields []FieldRule
}

func (s Schema) Validate(values map[string]string) error {
	var problems []string
	for _, f := range s.Fields {
		v := values[f.Name]
		if v == "" {
			if f.Required {
				problems = append(problems, f.Name+": required")
			}
			continue
		}
		if sqlInjection.MatchString(v) {
			problems = append(problems, f.Name+": contains disallowed characters")
			continue
		}
		if f.MinLen > 0 && len(v) < f.MinLen {
			problems = append(problems, f.Name+": shorter than "+strconv.Itoa(f.MinLen))
		}
		if f.MaxLen > 0 && len(v) > f.MaxLen {
			problems = append(problems, f.Name+": longer than "+strconv.Itoa(f.MaxLen))
		}
		if f.Pattern != nil && !f.Pattern.MatchString(v) {
			problems = append(problems, f.Name+": malformed value "+strconv.Quote(v))
		}
		if len(f.Enum) > 0 && !contains(f.Enum, v) {
			problems = append(problems, f.Name+": must be one of "+strings.Join(f.Enum, ", "))
		}
		if f.IntMin != nil || f.IntMax != nil {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				problems = append(problems, f.Name+": must be an integer")
			} else {
				if f.IntMin != nil && n < *f.IntMin {
					problems = append(problems, f.Name+": below minimum "+strconv.FormatInt(*f.IntMin, 10))
				}
				if f.IntMax != nil && n > *f.IntMax {
					problems = append(problems, f.Name+": above maximum "+strconv.FormatInt(*f.IntMax, 10))
				}
			}
		}
	}
	if len(problems) > 0 {
		return cmn.NewInvalidArgument("validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// RequireField rejects an empty required string field with a stable,
// human-readable message naming the field.
func RequireField(name, value string) error {
	if value == "" {
		return cmn.NewInvalidArgument("%s is required", name)
	}
	return nil
}

// QueryInt parses an optional integer query parameter, defaulting when
// absent and rejecting malformed values as InvalidArgument.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, cmn.NewInvalidArgument("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

// QueryInt64 is QueryInt's int64 counterpart, used for generation and
// size fields.
func QueryInt64(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, cmn.NewInvalidArgument("%s must be an integer, got %q", name, v)
	}
	return n, nil
}
