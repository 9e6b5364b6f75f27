package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

const (
	DefaultPrefix      = "u"
	DefaultDigits      = 8
	DefaultMaxAttempts = 100
)

var ten = big.NewInt(10)

// ExistenceChecker reports whether a candidate value is already stored.
type ExistenceChecker interface {
	Exists(ctx context.Context, value string) (bool, error)
}

// ExistenceFunc adapts a function to ExistenceChecker.
type ExistenceFunc func(ctx context.Context, value string) (bool, error)

// Exists implements ExistenceChecker.
func (f ExistenceFunc) Exists(ctx context.Context, value string) (bool, error) {
	return f(ctx, value)
}

// GeneratorOptions configures a UniqueValueGenerator. Zero values fall back to defaults,
// except Digits which is honoured as-is once DigitsSet is true.
type GeneratorOptions struct {
	Prefix      string
	Digits      int
	DigitsSet   bool
	MaxAttempts int
	Random      io.Reader
}

// UniqueValueGenerator builds prefix+digits candidates until one is not present in the store.
type UniqueValueGenerator struct {
	prefix      string
	digits      int
	maxAttempts int
	random      io.Reader
	checker     ExistenceChecker
}

// NewUniqueValueGenerator constructs a generator bound to the supplied existence checker.
func NewUniqueValueGenerator(checker ExistenceChecker, opts GeneratorOptions) (*UniqueValueGenerator, error) {
	if checker == nil {
		return nil, fmt.Errorf("existence checker is required")
	}

	prefix := opts.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultPrefix
	}

	digits := opts.Digits
	if !opts.DigitsSet && digits == 0 {
		digits = DefaultDigits
	}
	if digits < 0 {
		return nil, fmt.Errorf("digits must not be negative")
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	random := opts.Random
	if random == nil {
		random = rand.Reader
	}

	return &UniqueValueGenerator{
		prefix:      prefix,
		digits:      digits,
		maxAttempts: maxAttempts,
		random:      random,
		checker:     checker,
	}, nil
}

// MaxAttempts reports the attempt budget.
func (g *UniqueValueGenerator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns the first candidate that does not exist in the store.
func (g *UniqueValueGenerator) Generate(ctx context.Context) (string, error) {
	value, _, err := g.generate(ctx, g.maxAttempts)
	return value, err
}

// GenerateCounted draws at most budget candidates (capped at MaxAttempts) and reports
// how many were consumed, so callers retrying on store conflicts can share one budget.
func (g *UniqueValueGenerator) GenerateCounted(ctx context.Context, budget int) (string, int, error) {
	return g.generate(ctx, budget)
}

func (g *UniqueValueGenerator) generate(ctx context.Context, budget int) (string, int, error) {
	if budget <= 0 || budget > g.maxAttempts {
		budget = g.maxAttempts
	}

	for attempt := 1; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", attempt - 1, err
		}

		candidate, err := g.candidate()
		if err != nil {
			return "", attempt, err
		}

		exists, err := g.checker.Exists(ctx, candidate)
		if err != nil {
			return "", attempt, fmt.Errorf("check candidate %q: %w", candidate, err)
		}
		if !exists {
			return candidate, attempt, nil
		}
	}

	return "", budget, g.Exhausted(budget)
}

// Exhausted builds the error reported when attempts candidates were spent without success.
func (g *UniqueValueGenerator) Exhausted(attempts int) error {
	return &domain.GenerationExhaustedError{
		Prefix:   g.prefix,
		Digits:   g.digits,
		Attempts: attempts,
	}
}

func (g *UniqueValueGenerator) candidate() (string, error) {
	var b strings.Builder
	b.Grow(len(g.prefix) + g.digits)
	b.WriteString(g.prefix)

	for i := 0; i < g.digits; i++ {
		n, err := rand.Int(g.random, ten)
		if err != nil {
			return "", fmt.Errorf("draw random digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
