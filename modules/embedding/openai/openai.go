// Package openai implements the embedding.openai module: text embeddings
// from the OpenAI /embeddings endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/voidKandy/espionox-sub001/internal/core"
	"github.com/voidKandy/espionox-sub001/internal/embedding"
	"github.com/voidKandy/espionox-sub001/internal/provider"
	"github.com/voidKandy/espionox-sub001/internal/security"
)

// ModuleID is the module and credential identity of this embedder.
const ModuleID = "embedding.openai"

const maxResponseSize = 16 * 1024 * 1024

func init() {
	core.RegisterModule(&Embedder{})
}

var (
	_ core.Module        = (*Embedder)(nil)
	_ core.Configurable  = (*Embedder)(nil)
	_ core.Provisioner   = (*Embedder)(nil)
	_ core.Validator     = (*Embedder)(nil)
	_ embedding.Embedder = (*Embedder)(nil)
)

// Config holds the embedding.openai module configuration.
type Config struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Embedder calls the embeddings endpoint once per text.
type Embedder struct {
	config Config
	keys   provider.KeySource
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (e *Embedder) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Embedder{} },
	}
}

// Configure implements core.Configurable.
func (e *Embedder) Configure(node *yaml.Node) error {
	if err := node.Decode(&e.config); err != nil {
		return err
	}
	e.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (e *Embedder) Provision(ctx *core.AppContext) error {
	e.config.defaults()
	e.logger = ctx.Logger

	creds, err := core.Service[*security.CredentialStore](ctx, "security.credentials")
	if err != nil {
		return fmt.Errorf("%s: %w", ModuleID, err)
	}
	if e.config.APIKey != "" {
		creds.Set(ModuleID, e.config.APIKey)
		e.config.APIKey = ""
	}
	e.keys = creds
	e.client = &http.Client{Timeout: e.config.Timeout}

	ctx.RegisterService(ModuleID, embedding.Embedder(embedding.Checked(e)))
	return nil
}

// Validate implements core.Validator.
func (e *Embedder) Validate() error {
	var errs []error
	if e.config.Model == "" {
		errs = append(errs, fmt.Errorf("%s: model is required", ModuleID))
	}
	if e.config.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("%s: dimensions must not be negative", ModuleID))
	}
	if e.keys == nil {
		errs = append(errs, fmt.Errorf("%s: not provisioned", ModuleID))
	} else if _, ok := e.keys.Get(ModuleID); !ok {
		errs = append(errs, fmt.Errorf("%s: api_key is required", ModuleID))
	}
	return errors.Join(errs...)
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// Embed implements embedding.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	key, ok := e.keys.Get(ModuleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrMissingKey, ModuleID)
	}

	body, err := json.Marshal(embeddingRequest{
		Model:      e.config.Model,
		Input:      text,
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding.openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding.openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("embedding.openai: read response: %w", err)
	}
	if err := statusError(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	return parseEmbedding(raw)
}

// parseEmbedding extracts data[0].embedding.
func parseEmbedding(raw []byte) (embedding.Vector, error) {
	values := gjson.GetBytes(raw, "data.0.embedding")
	if !values.IsArray() {
		return nil, fmt.Errorf("embedding.openai: response has no data[0].embedding")
	}
	arr := values.Array()
	vec := make(embedding.Vector, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("embedding.openai: element %d is %s", i, v.Type)
		}
		vec[i] = float32(v.Float())
	}
	return vec, nil
}

func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", provider.ErrAuth, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrProviderDown, status, msg)
	default:
		return fmt.Errorf("embedding.openai: HTTP %d: %s", status, msg)
	}
}
