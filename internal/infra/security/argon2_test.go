package security

import (
	"strings"
	"testing"

	"github.com/arklim/accounts-iam/internal/core/port"
)

func testParams() port.Argon2Params {
	return port.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := NewArgon2Hasher(testParams())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("unexpected parameter segment: %s", parts[2])
	}

	ok, err := hasher.Verify("correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestArgon2HashesAreSalted(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testParams())
	first, _ := hasher.Hash("same-password")
	second, _ := hasher.Hash("same-password")
	if first == second {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestArgon2VerifyRejectsMalformedHash(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testParams())
	if _, err := hasher.Verify("password", "salt:hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
	if _, err := hasher.Verify("password", "bcrypt$v=19$m=8192,t=1,p=1$AAAA$AAAA"); err == nil {
		t.Fatal("expected error for foreign variant")
	}
}

func TestArgon2VerifyEmptyInputs(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testParams())
	ok, err := hasher.Verify("", "")
	if err != nil || ok {
		t.Fatalf("expected false without error, ok=%v err=%v", ok, err)
	}
}

func TestArgon2ConfigureAndRehash(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testParams())
	old, _ := hasher.Hash("rotate-me")

	tuned := testParams()
	tuned.Iterations = 2
	if err := hasher.Configure(tuned); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}
	if !hasher.NeedsRehash(old) {
		t.Fatal("expected hash produced with old parameters to need rehash")
	}

	ok, err := hasher.Verify("rotate-me", old)
	if err != nil || !ok {
		t.Fatalf("expected old hash to keep verifying, ok=%v err=%v", ok, err)
	}

	fresh, _ := hasher.Hash("rotate-me")
	if hasher.NeedsRehash(fresh) {
		t.Fatal("expected fresh hash to match active parameters")
	}
}

func TestArgon2RejectsWeakParameters(t *testing.T) {
	weak := testParams()
	weak.Memory = 1024
	if _, err := NewArgon2Hasher(weak); err == nil {
		t.Fatal("expected error for memory below minimum")
	}
}
