package denylist

import (
	"testing"

	"github.com/skatamatic/blulok-cloud/internal/signing"
)

type builderPayload struct {
	CmdType  string    `json:"cmd_type"`
	Targets  []string  `json:"targets"`
	Entries  []AddEntry `json:"entries"`
	Subjects []string  `json:"subjects"`
}

func testSigner(t *testing.T) *signing.Service {
	t.Helper()
	pub, priv, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	svc, err := signing.New(priv, pub)
	if err != nil {
		t.Fatalf("signing.New() error: %v", err)
	}
	return svc
}

func TestBuildAdd(t *testing.T) {
	signer := testSigner(t)
	b := New(signer)

	token, err := b.BuildAdd([]string{"lock-1", "lock-2"}, []AddEntry{{Sub: "user-1", Exp: 1234}})
	if err != nil {
		t.Fatalf("BuildAdd() error: %v", err)
	}

	var payload builderPayload
	if err := signer.Verify(token, "", &payload); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if payload.CmdType != cmdTypeDenylistAdd {
		t.Errorf("CmdType = %q, want %q", payload.CmdType, cmdTypeDenylistAdd)
	}
	if len(payload.Targets) != 2 || len(payload.Entries) != 1 {
		t.Errorf("payload = %+v, unexpected shape", payload)
	}
}

func TestBuildRemove(t *testing.T) {
	signer := testSigner(t)
	b := New(signer)

	token, err := b.BuildRemove([]string{"lock-1"}, []string{"user-1", "user-2"})
	if err != nil {
		t.Fatalf("BuildRemove() error: %v", err)
	}

	var payload builderPayload
	if err := signer.Verify(token, "", &payload); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if payload.CmdType != cmdTypeDenylistRemove {
		t.Errorf("CmdType = %q, want %q", payload.CmdType, cmdTypeDenylistRemove)
	}
	if len(payload.Subjects) != 2 {
		t.Errorf("Subjects = %v, want 2 entries", payload.Subjects)
	}
}
