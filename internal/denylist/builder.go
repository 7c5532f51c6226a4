// Package denylist implements the device-scoped denylist engine: the
// command builder (C7), the persistent store (C8), and the optimizer (C9)
// that skips commands no live Route Pass could still exploit.
package denylist

import (
	"time"

	"github.com/skatamatic/blulok-cloud/internal/signing"
)

const (
	cmdTypeDenylistAdd    = "DENYLIST_ADD"
	cmdTypeDenylistRemove = "DENYLIST_REMOVE"
)

// AddEntry is one (subject, removal-deadline) pair in a DENYLIST_ADD command.
type AddEntry struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"`
}

// addPayload is the signed claims body of a DENYLIST_ADD command.
type addPayload struct {
	CmdType string     `json:"cmd_type"`
	Targets []string   `json:"targets"`
	Entries []AddEntry `json:"entries"`
}

// removePayload is the signed claims body of a DENYLIST_REMOVE command.
type removePayload struct {
	CmdType  string   `json:"cmd_type"`
	Targets  []string `json:"targets"`
	Subjects []string `json:"subjects"`
}

// commandTTL bounds how long a denylist command envelope itself is valid;
// it is independent of the entries' own expires_at deadlines.
const commandTTL = 5 * time.Minute

// Builder signs DENYLIST_ADD / DENYLIST_REMOVE command envelopes with the
// operator key, per spec.md §4.7.
type Builder struct {
	signer *signing.Service
}

// New creates a Builder.
func New(signer *signing.Service) *Builder {
	return &Builder{signer: signer}
}

// BuildAdd signs a DENYLIST_ADD command denylisting every (deviceId) target
// for the given (subject, removalDeadline) entries.
func (b *Builder) BuildAdd(targets []string, entries []AddEntry) (string, error) {
	payload := addPayload{
		CmdType: cmdTypeDenylistAdd,
		Targets: targets,
		Entries: entries,
	}
	token, _, _, err := b.signer.Sign(payload, commandTTL)
	return token, err
}

// BuildRemove signs a DENYLIST_REMOVE command lifting the denylist for every
// (deviceId) target and (userId) subject pair.
func (b *Builder) BuildRemove(targets []string, subjects []string) (string, error) {
	payload := removePayload{
		CmdType:  cmdTypeDenylistRemove,
		Targets:  targets,
		Subjects: subjects,
	}
	token, _, _, err := b.signer.Sign(payload, commandTTL)
	return token, err
}
