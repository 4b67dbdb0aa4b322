package integrity

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
)

func TestFingerprintCoversOwnershipFields(t *testing.T) {
	signer := NewSignerWithSecret("test-secret")
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	owner := node.Generate()
	other := node.Generate()
	createdAt := time.Date(2031, 7, 4, 12, 0, 0, 0, time.UTC)

	base := signer.Fingerprint("2031-07-04", owner, 2900, createdAt)

	if got := signer.Fingerprint("2031-07-04", owner, 2900, createdAt); got != base {
		t.Fatalf("expected deterministic fingerprint")
	}
	if got := signer.Fingerprint("2031-07-05", owner, 2900, createdAt); got == base {
		t.Fatalf("expected day change to alter fingerprint")
	}
	if got := signer.Fingerprint("2031-07-04", other, 2900, createdAt); got == base {
		t.Fatalf("expected owner change to alter fingerprint")
	}
	if got := signer.Fingerprint("2031-07-04", owner, 15000, createdAt); got == base {
		t.Fatalf("expected price change to alter fingerprint")
	}
	if got := signer.Fingerprint("2031-07-04", owner, 2900, createdAt.Add(time.Second)); got == base {
		t.Fatalf("expected created_at change to alter fingerprint")
	}
}

func TestFingerprintSecretIsolation(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	owner := node.Generate()
	createdAt := time.Date(2031, 7, 4, 12, 0, 0, 0, time.UTC)

	a := NewSignerWithSecret("secret-a").Fingerprint("2031-07-04", owner, 2900, createdAt)
	b := NewSignerWithSecret("secret-b").Fingerprint("2031-07-04", owner, 2900, createdAt)
	if a == b {
		t.Fatalf("expected different secrets to produce different fingerprints")
	}
}

func TestVerify(t *testing.T) {
	signer := NewSignerWithSecret("test-secret")
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	owner := node.Generate()
	createdAt := time.Date(2031, 7, 4, 12, 0, 0, 0, time.UTC)

	fingerprint := signer.Fingerprint("2031-07-04", owner, 2900, createdAt)
	if !signer.Verify(fingerprint, "2031-07-04", owner, 2900, createdAt) {
		t.Fatalf("expected fingerprint to verify")
	}
	if signer.Verify(fingerprint, "2031-07-04", owner, 9999, createdAt) {
		t.Fatalf("expected mutated price to fail verification")
	}
	if signer.Verify("forged", "2031-07-04", owner, 2900, createdAt) {
		t.Fatalf("expected forged candidate to fail verification")
	}
}
