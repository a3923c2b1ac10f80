package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/clinicore/platform/internal/shared/types"
)

// SentMail records one delivery through the mock mail provider
type SentMail struct {
	ClinicID types.ID
	To       string
	Subject  string
	Body     string
}

// MockMailProvider is an in-memory mail provider for development and
// tests. It records every send and can be toggled disconnected or
// failing.
type MockMailProvider struct {
	mu           sync.Mutex
	Disconnected bool
	FailWith     error
	Sent         []SentMail
}

// NewMockMailProvider creates a connected mock mail provider
func NewMockMailProvider() *MockMailProvider {
	return &MockMailProvider{}
}

func (p *MockMailProvider) Connected(ctx context.Context, clinicID types.ID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Disconnected, nil
}

func (p *MockMailProvider) SendMail(ctx context.Context, clinicID types.ID, to, subject, htmlBody string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailWith != nil {
		return "", p.FailWith
	}

	p.Sent = append(p.Sent, SentMail{ClinicID: clinicID, To: to, Subject: subject, Body: htmlBody})
	return fmt.Sprintf("mock-mail-%d", len(p.Sent)), nil
}

// SentChat records one delivery through the mock chat provider. For
// template sends Template and Params are set and Body is empty.
type SentChat struct {
	ClinicID types.ID
	To       string
	Body     string
	Template MetaTemplateName
	Params   []string
}

// MockChatProvider is an in-memory chat provider for development and
// tests. SessionClosed simulates the 24-hour window being shut, making
// free-form sends fail with ErrOutsideSessionWindow while template
// sends still go through.
type MockChatProvider struct {
	mu            sync.Mutex
	Disconnected  bool
	SessionClosed bool
	FailWith      error
	Sent          []SentChat
}

// NewMockChatProvider creates a connected mock chat provider with an
// open session window
func NewMockChatProvider() *MockChatProvider {
	return &MockChatProvider{}
}

func (p *MockChatProvider) Connected(ctx context.Context, clinicID types.ID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Disconnected, nil
}

func (p *MockChatProvider) SendText(ctx context.Context, clinicID types.ID, to, body string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailWith != nil {
		return "", p.FailWith
	}
	if p.SessionClosed {
		return "", ErrOutsideSessionWindow
	}

	p.Sent = append(p.Sent, SentChat{ClinicID: clinicID, To: to, Body: body})
	return fmt.Sprintf("mock-chat-%d", len(p.Sent)), nil
}

func (p *MockChatProvider) SendTemplate(ctx context.Context, clinicID types.ID, to string, template MetaTemplateName, params []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailWith != nil {
		return "", p.FailWith
	}

	p.Sent = append(p.Sent, SentChat{ClinicID: clinicID, To: to, Template: template, Params: params})
	return fmt.Sprintf("mock-chat-tmpl-%d", len(p.Sent)), nil
}
