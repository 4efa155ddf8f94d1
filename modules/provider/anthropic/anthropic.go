// Package anthropic implements the provider.anthropic module on top of the
// Anthropic Messages API. Streamed events are normalized into the shared
// {"choices":[{"delta":{...}}]} chunk shape before they reach the decoder.
package anthropic

import (
	"errors"
	"fmt"
	"log/slog"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/security"
)

// ModuleID is the module and credential identity of this provider.
const ModuleID = "provider.anthropic"

func init() {
	core.RegisterModule(&Anthropic{})
}

// Interface guards.
var (
	_ core.Module       = (*Anthropic)(nil)
	_ core.Configurable = (*Anthropic)(nil)
	_ core.Provisioner  = (*Anthropic)(nil)
	_ core.Validator    = (*Anthropic)(nil)
	_ provider.Provider = (*Anthropic)(nil)
)

// Anthropic is the provider.anthropic module.
type Anthropic struct {
	config Config
	client *sdkanthropic.Client
	keys   provider.KeySource
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Anthropic{} },
	}
}

// Configure implements core.Configurable.
func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner. A configured api_key is moved into
// the credential store; the SDK client itself carries no key and every
// request attaches the current one.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.config.defaults()
	a.logger = ctx.Logger

	creds, err := core.Service[*security.CredentialStore](ctx, "security.credentials")
	if err != nil {
		return fmt.Errorf("%s: %w", ModuleID, err)
	}
	if a.config.APIKey != "" {
		creds.Set(ModuleID, a.config.APIKey)
		a.config.APIKey = ""
	}
	a.keys = creds

	a.client = newClient(a.config)
	ctx.RegisterService(ModuleID, a)
	return nil
}

func newClient(cfg Config) *sdkanthropic.Client {
	opts := []option.RequestOption{
		// Retries belong to the dispatcher.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := sdkanthropic.NewClient(opts...)
	return &client
}

// Validate implements core.Validator.
func (a *Anthropic) Validate() error {
	var errs []error
	if a.config.Model == "" {
		errs = append(errs, errors.New("provider.anthropic: model must not be empty"))
	}
	if a.config.MaxTokens <= 0 {
		errs = append(errs, errors.New("provider.anthropic: max_tokens must be positive"))
	}
	if a.client == nil || a.keys == nil {
		errs = append(errs, errors.New("provider.anthropic: not provisioned"))
	} else if _, ok := a.keys.Get(ModuleID); !ok {
		errs = append(errs, errors.New("provider.anthropic: api_key is required"))
	}
	return errors.Join(errs...)
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}

// keyOption returns the per-request credential.
func (a *Anthropic) keyOption() (option.RequestOption, error) {
	key, ok := a.keys.Get(ModuleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrMissingKey, ModuleID)
	}
	return option.WithAPIKey(key), nil
}
