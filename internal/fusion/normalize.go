package fusion

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Method selects a score normalization
type Method string

const (
	MethodMinMax  Method = "minmax"
	MethodSoftmax Method = "softmax"
	MethodNone    Method = "none"
)

// DefaultTemperature is the softmax temperature used when none is given
const DefaultTemperature = 2.0

// ErrUnknownMethod is returned for unrecognized normalization methods
var ErrUnknownMethod = errors.New("unknown normalization method")

// ParseMethod parses a method name. The empty string selects minmax.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodMinMax, nil
	case MethodMinMax, MethodSoftmax, MethodNone:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Normalize rescales scores with method. The input is not modified.
func Normalize(scores []float64, method Method, temperature float64) ([]float64, error) {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		if _, err := ParseMethod(string(method)); err != nil {
			return nil, err
		}
		return out, nil
	}

	switch method {
	case MethodMinMax, "":
		minMax(scores, out)
	case MethodSoftmax:
		softmax(scores, out, temperature)
	case MethodNone:
		copy(out, scores)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return out, nil
}

func minMax(scores, out []float64) {
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}

	span := hi - lo
	for i, s := range scores {
		if span == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = (s - lo) / span
	}
}

func softmax(scores, out []float64, temperature float64) {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	hi := scores[0]
	for _, s := range scores[1:] {
		hi = math.Max(hi, s)
	}

	var sum float64
	for i, s := range scores {
		out[i] = math.Exp((s - hi) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}
