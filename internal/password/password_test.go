package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	digest, err := Hash("Secret1!", DefaultParams())
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$") {
		t.Fatalf("digest is not a PHC argon2id string: %q", digest)
	}

	ok, err := Verify(digest, "Secret1!")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("correct password did not verify")
	}

	ok, err = Verify(digest, "wrong")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	t.Parallel()

	a, err := Hash("Secret1!", DefaultParams())
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := Hash("Secret1!", DefaultParams())
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestVerify_MalformedDigest(t *testing.T) {
	t.Parallel()

	if _, err := Verify("not-a-digest", "x"); err == nil {
		t.Fatal("expected error for malformed digest")
	}
	if _, err := Verify("$bcrypt$something", "x"); err == nil {
		t.Fatal("expected error for unsupported digest")
	}
}
