// Package validator gates chat queries on content: basic size checks, an
// injection-pattern denylist, a special-character density heuristic, and a
// topic keyword check that keeps the bot on motorcycle repair.
package validator

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrEmptyQuery is returned when the query is empty or whitespace-only.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrQueryTooLong is returned when the query exceeds the configured maximum length.
	ErrQueryTooLong = errors.New("query is too long")

	// ErrMaliciousPattern is returned when the query matches the injection denylist.
	ErrMaliciousPattern = errors.New("query contains invalid characters or patterns")

	// ErrExcessiveSpecialChars is returned when too large a fraction of the
	// query is special characters.
	ErrExcessiveSpecialChars = errors.New("query contains too many special characters")

	// ErrOffTopic is returned when the query contains no motorcycle-related keyword.
	ErrOffTopic = errors.New("query doesn't appear to be motorcycle-related")
)

// Reason identifies why a query was rejected. It is the stable wire-level
// taxonomy; the error values above carry the human-readable detail.
type Reason string

const (
	ReasonEmpty                 Reason = "empty"
	ReasonTooLong               Reason = "too_long"
	ReasonMaliciousPattern      Reason = "malicious_pattern"
	ReasonExcessiveSpecialChars Reason = "excessive_special_chars"
	ReasonOffTopic              Reason = "off_topic"
)

// ReasonFor maps a validation error to its Reason. Returns "" for nil or
// unrecognized errors.
func ReasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return ReasonEmpty
	case errors.Is(err, ErrQueryTooLong):
		return ReasonTooLong
	case errors.Is(err, ErrMaliciousPattern):
		return ReasonMaliciousPattern
	case errors.Is(err, ErrExcessiveSpecialChars):
		return ReasonExcessiveSpecialChars
	case errors.Is(err, ErrOffTopic):
		return ReasonOffTopic
	default:
		return ""
	}
}

// Config holds the tunable validation thresholds. Zero values fall back to
// the defaults (1000 characters, 0.3 special-character ratio).
type Config struct {
	// MaxQueryLength is the maximum query length in characters.
	MaxQueryLength int

	// SpecialCharRatio is the maximum allowed fraction of special characters.
	SpecialCharRatio float64
}

const (
	defaultMaxQueryLength   = 1000
	defaultSpecialCharRatio = 0.3
)

// dangerousPatterns is the case-insensitive substring denylist: SQL mutation
// keywords, script/markup injection markers, and path traversal sequences.
var dangerousPatterns = []string{
	"drop table",
	"delete from",
	"insert into",
	"update set",
	"<script",
	"javascript:",
	"onerror=",
	"onclick=",
	"../",
	"..\\",
}

// allowedPunctuation is the small set of punctuation that does not count
// toward the special-character ratio.
const allowedPunctuation = "?.,'-"

// QueryValidator validates that a chat query is safe and on topic.
// The keyword set can be extended at runtime; all methods are safe for
// concurrent use.
type QueryValidator struct {
	maxQueryLength   int
	specialCharRatio float64

	mu       sync.RWMutex
	keywords []string
}

// New creates a QueryValidator with the built-in motorcycle keyword set.
func New(cfg Config) *QueryValidator {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = defaultMaxQueryLength
	}
	if cfg.SpecialCharRatio <= 0 {
		cfg.SpecialCharRatio = defaultSpecialCharRatio
	}

	keywords := make([]string, len(defaultKeywords))
	copy(keywords, defaultKeywords)

	return &QueryValidator{
		maxQueryLength:   cfg.MaxQueryLength,
		specialCharRatio: cfg.SpecialCharRatio,
		keywords:         keywords,
	}
}

// Validate checks a query and returns nil if it may proceed. Checks run in a
// fixed order so the same bad query always reports the same reason: empty,
// too long, malicious pattern, special-character density, off topic.
func (v *QueryValidator) Validate(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}

	if utf8.RuneCountInString(query) > v.maxQueryLength {
		return fmt.Errorf("%w (max %d characters)", ErrQueryTooLong, v.maxQueryLength)
	}

	if err := v.checkMaliciousPatterns(query); err != nil {
		return err
	}

	if !v.hasKeyword(query) {
		return fmt.Errorf("%w: this chatbot only answers motorcycle repair and maintenance questions", ErrOffTopic)
	}

	return nil
}

// checkMaliciousPatterns scans for denylisted substrings and excessive
// special characters.
func (v *QueryValidator) checkMaliciousPatterns(query string) error {
	lower := strings.ToLower(query)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			log.Printf("validator: blocked query matching pattern %q", pattern)
			return ErrMaliciousPattern
		}
	}

	total := 0
	special := 0
	for _, r := range query {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			continue
		}
		if strings.ContainsRune(allowedPunctuation, r) {
			continue
		}
		special++
	}

	if total > 0 && float64(special)/float64(total) > v.specialCharRatio {
		log.Printf("validator: blocked query with excessive special characters (%d/%d)", special, total)
		return ErrExcessiveSpecialChars
	}

	return nil
}

// hasKeyword reports whether the query contains any topic keyword,
// case-insensitively.
func (v *QueryValidator) hasKeyword(query string) bool {
	lower := strings.ToLower(query)

	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, kw := range v.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// AddKeyword appends a keyword to the topic set. The denylist is fixed;
// extending the accepted vocabulary does not require a redeploy.
func (v *QueryValidator) AddKeyword(keyword string) {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keywords = append(v.keywords, kw)
}

// defaultKeywords covers general motorcycle terms, repair actions, mechanical
// subsystems, and common brand/model names.
var defaultKeywords = []string{
	// General terms
	"motorcycle", "bike", "motorbike", "scooter", "moped",

	// Repair & maintenance actions
	"repair", "fix", "maintenance", "service", "tune", "adjust",
	"replace", "install", "remove", "clean", "inspect", "check",

	// Engine
	"engine", "motor", "piston", "cylinder", "crankshaft",
	"camshaft", "valve", "timing", "compression", "carburetor",
	"fuel injection", "throttle", "choke",

	// Electrical
	"battery", "spark plug", "ignition", "starter", "alternator",
	"wiring", "fuse", "headlight", "taillight", "electrical",

	// Drivetrain
	"clutch", "transmission", "gearbox", "chain", "sprocket",
	"drive belt", "gear", "shift",

	// Suspension & brakes
	"fork", "suspension", "shock", "brake", "caliper",
	"disc", "pad", "fluid", "master cylinder",

	// Wheels & tires
	"tire", "tyre", "wheel", "rim", "spoke", "tube",

	// Fuel system
	"fuel", "gas", "petrol", "tank", "injector", "filter",

	// Exhaust
	"exhaust", "muffler", "header", "pipe", "catalytic",

	// Cooling
	"coolant", "radiator", "cooling", "thermostat",

	// Lubrication
	"oil", "lubricant", "grease",

	// Brands and models
	"honda", "yamaha", "kawasaki", "suzuki", "ducati",
	"harley", "bmw", "ktm", "triumph", "aprilia",
	"cbr", "r1", "r6", "ninja", "gsxr", "zx",
}
