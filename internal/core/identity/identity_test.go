package identity

import (
	"context"
	"errors"
	"regexp"
	"testing"

	uuid "github.com/google/uuid"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

type setChecker map[string]struct{}

func (s setChecker) Exists(_ context.Context, value string) (bool, error) {
	_, ok := s[value]
	return ok, nil
}

func TestKeyAssignerUUIDMode(t *testing.T) {
	assigner := NewKeyAssigner(domain.KeyModeUUID)

	key := assigner.Assign("")
	if _, err := uuid.Parse(key); err != nil {
		t.Fatalf("expected uuid key, got %q: %v", key, err)
	}

	if other := assigner.Assign(""); other == key {
		t.Fatalf("expected distinct keys, got %q twice", key)
	}

	if got := assigner.Assign("preset-key"); got != "preset-key" {
		t.Fatalf("expected supplied key to be kept, got %q", got)
	}
}

func TestKeyAssignerSequentialModeLeavesKeyToStore(t *testing.T) {
	assigner := NewKeyAssigner(domain.KeyModeSequential)
	if got := assigner.Assign("ignored"); got != "" {
		t.Fatalf("expected empty key in sequential mode, got %q", got)
	}
	if assigner.Mode() != domain.KeyModeSequential {
		t.Fatalf("unexpected mode %q", assigner.Mode())
	}
}

func TestKeyAssignerDefaultsToUUID(t *testing.T) {
	if mode := NewKeyAssigner("").Mode(); mode != domain.KeyModeUUID {
		t.Fatalf("expected uuid default, got %q", mode)
	}
}

func TestGenerateDefaultShape(t *testing.T) {
	gen, err := NewUniqueValueGenerator(setChecker{}, GeneratorOptions{})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}

	pattern := regexp.MustCompile(`^u\d{8}$`)
	for i := 0; i < 50; i++ {
		value, err := gen.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if len(value) != 9 || !pattern.MatchString(value) {
			t.Fatalf("unexpected value %q", value)
		}
	}
}

func TestGenerateCustomPrefixAndDigits(t *testing.T) {
	gen, err := NewUniqueValueGenerator(setChecker{}, GeneratorOptions{Prefix: "test"})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}
	value, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(value) != 12 || value[:4] != "test" {
		t.Fatalf("unexpected value %q", value)
	}

	short, err := NewUniqueValueGenerator(setChecker{}, GeneratorOptions{Digits: 4})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}
	value, err = short.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !regexp.MustCompile(`^u\d{4}$`).MatchString(value) {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestGenerateSkipsExistingValues(t *testing.T) {
	existing := setChecker{}
	for i := 0; i < 10; i++ {
		existing["u"+string(rune('0'+i))] = struct{}{}
	}
	delete(existing, "u7")

	gen, err := NewUniqueValueGenerator(existing, GeneratorOptions{Digits: 1, MaxAttempts: 10_000})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}

	value, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if value != "u7" {
		t.Fatalf("expected the only free value u7, got %q", value)
	}
}

func TestGenerateExhausted(t *testing.T) {
	gen, err := NewUniqueValueGenerator(setChecker{"u": {}}, GeneratorOptions{DigitsSet: true, Digits: 0, MaxAttempts: 1})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}

	_, err = gen.Generate(context.Background())
	if !errors.Is(err, domain.ErrGenerationExhausted) {
		t.Fatalf("expected generation exhausted, got %v", err)
	}

	var exhausted *domain.GenerationExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *GenerationExhaustedError, got %T", err)
	}
	if exhausted.Attempts != 1 || exhausted.Prefix != "u" || exhausted.Digits != 0 {
		t.Fatalf("unexpected exhaustion details %+v", exhausted)
	}
}

func TestGenerateCountedRespectsBudget(t *testing.T) {
	calls := 0
	checker := ExistenceFunc(func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})

	gen, err := NewUniqueValueGenerator(checker, GeneratorOptions{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}

	_, used, err := gen.GenerateCounted(context.Background(), 3)
	if !errors.Is(err, domain.ErrGenerationExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if used != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, used=%d calls=%d", used, calls)
	}

	calls = 0
	if _, err := gen.Generate(context.Background()); err == nil {
		t.Fatalf("expected exhaustion")
	}
	if calls != 5 {
		t.Fatalf("expected full budget of 5, got %d", calls)
	}
}

func TestGenerateStopsOnStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	checker := ExistenceFunc(func(context.Context, string) (bool, error) {
		return false, storeErr
	})

	gen, err := NewUniqueValueGenerator(checker, GeneratorOptions{})
	if err != nil {
		t.Fatalf("NewUniqueValueGenerator returned error: %v", err)
	}

	if _, err := gen.Generate(context.Background()); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestNewUniqueValueGeneratorRequiresChecker(t *testing.T) {
	if _, err := NewUniqueValueGenerator(nil, GeneratorOptions{}); err == nil {
		t.Fatalf("expected error for nil checker")
	}
}
