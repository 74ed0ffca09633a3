package fusion

import (
	"errors"
	"fmt"
	"math"
	"regexp"
)

// weightTolerance is the allowed deviation of alpha + beta from 1
const weightTolerance = 1e-6

// ErrInvalidWeights is returned when fusion weights are out of range or do not sum to 1
var ErrInvalidWeights = errors.New("invalid fusion weights")

// Weights are the fusion coefficients: alpha for vector, beta for keyword
type Weights struct {
	Vector  float64 `json:"alpha" yaml:"alpha"`
	Keyword float64 `json:"beta" yaml:"beta"`
}

// Validate checks both weights are in [0, 1] and sum to 1
func (w Weights) Validate() error {
	if w.Vector < 0 || w.Vector > 1 || w.Keyword < 0 || w.Keyword > 1 {
		return fmt.Errorf("%w: alpha=%g beta=%g must be within [0, 1]", ErrInvalidWeights, w.Vector, w.Keyword)
	}
	if math.Abs(w.Vector+w.Keyword-1) > weightTolerance {
		return fmt.Errorf("%w: alpha + beta = %g, want 1", ErrInvalidWeights, w.Vector+w.Keyword)
	}
	return nil
}

// QueryKind classifies a query for weight selection
type QueryKind int

const (
	QueryGeneral QueryKind = iota
	QueryErrorCode
)

func (k QueryKind) String() string {
	switch k {
	case QueryGeneral:
		return "general"
	case QueryErrorCode:
		return "error_code"
	default:
		return fmt.Sprintf("QueryKind(%d)", int(k))
	}
}

// queryRules is checked in order; the first kind with a matching pattern wins
var queryRules = []struct {
	kind     QueryKind
	patterns []*regexp.Regexp
}{
	{
		kind: QueryErrorCode,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)card_declined|card_expired|insufficient_funds|invalid_cvc|processing_error`),
			regexp.MustCompile(`(?i)err_\d+|error_\d+|api_error|validation_error`),
			regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`),
			regexp.MustCompile(`(?i)sk_(live|test)_[a-zA-Z0-9]+|pk_(live|test)_[a-zA-Z0-9]+`),
			regexp.MustCompile(`(?i)whsec_[a-zA-Z0-9]+`),
		},
	},
}

// ClassifyQuery returns the kind of query
func ClassifyQuery(query string) QueryKind {
	for _, rule := range queryRules {
		for _, p := range rule.patterns {
			if p.MatchString(query) {
				return rule.kind
			}
		}
	}
	return QueryGeneral
}

// Profiles maps every query kind to its default weights
type Profiles map[QueryKind]Weights

// DefaultProfiles returns the built-in weight table
func DefaultProfiles() Profiles {
	return Profiles{
		QueryGeneral:   {Vector: 0.7, Keyword: 0.3},
		QueryErrorCode: {Vector: 0.4, Keyword: 0.6},
	}
}

// WeightsFor returns the weights for kind, falling back to the general profile
func (p Profiles) WeightsFor(kind QueryKind) Weights {
	if w, ok := p[kind]; ok {
		return w
	}
	if w, ok := p[QueryGeneral]; ok {
		return w
	}
	return DefaultProfiles()[QueryGeneral]
}

// Validate checks every profile
func (p Profiles) Validate() error {
	for kind, w := range p {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", kind, err)
		}
	}
	return nil
}
