package services

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/huangang/copilot-metrics/pkg/logger"
)

// ErrInvalidCredential is returned when the token or org is blank.
var ErrInvalidCredential = errors.New("token and org are required")

// Credential is the org/token pair used to call the upstream API.
// The token is never serialized.
type Credential struct {
	Org   string `json:"org"`
	Token string `json:"-"`
}

// String redacts the token so the credential is safe to log.
func (c Credential) String() string {
	return "Credential{org=" + c.Org + ", token=[REDACTED]}"
}

// CredentialStatus is what callers may learn about the stored credential.
type CredentialStatus struct {
	HasToken bool   `json:"hasToken"`
	Org      string `json:"orgName"`
}

// CredentialStore holds the single process-wide credential. Updates replace
// the whole pair with one atomic pointer swap, so readers never see a token
// from one submission paired with the org of another.
type CredentialStore struct {
	current atomic.Pointer[Credential]
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Set validates and stores a credential, replacing any previous one.
// A rejected submission leaves the stored credential untouched.
func (s *CredentialStore) Set(token, org string) error {
	token = strings.TrimSpace(token)
	org = strings.TrimSpace(org)
	if token == "" || org == "" {
		return ErrInvalidCredential
	}
	s.current.Store(&Credential{Org: org, Token: token})
	return nil
}

// Seed stores a credential from static configuration. Partial or blank seeds
// are skipped.
func (s *CredentialStore) Seed(token, org string) {
	if token == "" && org == "" {
		return
	}
	if err := s.Set(token, org); err != nil {
		logger.Warn().Str("org", org).Msg("Ignoring incomplete GitHub credential from configuration")
		return
	}
	logger.Info().Str("org", strings.TrimSpace(org)).Msg("GitHub credential loaded from configuration")
}

// Status reports whether a token is stored and for which org.
func (s *CredentialStore) Status() CredentialStatus {
	cred := s.current.Load()
	if cred == nil {
		return CredentialStatus{}
	}
	return CredentialStatus{HasToken: true, Org: cred.Org}
}

// Current returns a copy of the stored credential for the metrics proxy.
func (s *CredentialStore) Current() (Credential, bool) {
	cred := s.current.Load()
	if cred == nil {
		return Credential{}, false
	}
	return *cred, true
}
