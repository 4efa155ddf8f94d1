// Package openai implements the provider.openai module: OpenAI Chat
// Completions over HTTP, streaming raw SSE payloads to the decoder.
package openai

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/security"
)

// ModuleID is the module and credential identity of this provider.
const ModuleID = "provider.openai"

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider = (*Provider)(nil)
	_ core.Module       = (*Provider)(nil)
	_ core.Configurable = (*Provider)(nil)
	_ core.Provisioner  = (*Provider)(nil)
	_ core.Validator    = (*Provider)(nil)
)

// Provider implements the OpenAI Chat Completions API as a provider module.
type Provider struct {
	config       Config
	logger       *slog.Logger
	keys         provider.KeySource
	client       *http.Client
	streamClient *http.Client
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The configured api_key is moved
// into the shared credential store; requests read it back from there.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger

	creds, err := core.Service[*security.CredentialStore](ctx, "security.credentials")
	if err != nil {
		return fmt.Errorf("%s: %w", ModuleID, err)
	}
	if p.config.APIKey != "" {
		creds.Set(ModuleID, p.config.APIKey)
		p.config.APIKey = ""
	}
	p.keys = creds

	// http.Client.Timeout is a hard deadline for the entire response body,
	// which would kill long-lived SSE streams. The streaming client relies
	// on context cancellation instead.
	p.client = &http.Client{Timeout: p.config.parsedTimeout()}
	p.streamClient = &http.Client{}

	ctx.RegisterService(ModuleID, p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	var errs []error
	if p.keys == nil {
		errs = append(errs, fmt.Errorf("%s: not provisioned", ModuleID))
	} else if _, ok := p.keys.Get(ModuleID); !ok {
		errs = append(errs, fmt.Errorf("%s: api_key is required", ModuleID))
	}
	if p.config.Model == "" {
		errs = append(errs, fmt.Errorf("%s: model is required", ModuleID))
	}
	if err := p.config.validateTimeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string {
	return p.config.Model
}
