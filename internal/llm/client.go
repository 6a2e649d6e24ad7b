// Package llm wraps the managed completion service behind one Generate call.
// Providers are switchable; the default deployment targets Azure OpenAI.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"hrchat/internal/config"
)

const defaultTemperature float32 = 0.3

// Reasoning-model families reject sampling parameters outright, so the
// request must omit them instead of retrying on an InvalidParameter error.
var noSamplingPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

// Client is a provider-agnostic completion client.
type Client struct {
	chatModel model.ToolCallingChatModel
	provider  string
	modelName string
}

// NewClient builds a completion client for the given provider.
func NewClient(ctx context.Context, provider string, cfg config.ProviderConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key not configured", provider)
	}
	modelName := cfg.Model
	if modelName == "" {
		return nil, fmt.Errorf("provider %s: model not configured", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai", "azure":
		mc := &openai.ChatModelConfig{
			BaseURL:    cfg.BaseURL,
			Model:      modelName,
			APIKey:     cfg.APIKey,
			ByAzure:    cfg.ByAzure || provider == "azure",
			APIVersion: cfg.APIVersion,
		}
		if SupportsSampling(modelName) {
			temp := defaultTemperature
			mc.Temperature = &temp
		}
		chatModel, err = openai.NewChatModel(ctx, mc)
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
		if cerr != nil {
			return nil, fmt.Errorf("gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	return &Client{chatModel: chatModel, provider: provider, modelName: modelName}, nil
}

// Generate runs one completion over the assembled messages and returns the
// assistant text. Caller controls timeout and cancellation through ctx.
func (c *Client) Generate(ctx context.Context, messages []*schema.Message) (string, error) {
	resp, err := c.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("completion (%s/%s): %w", c.provider, c.modelName, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Describe reports which provider/model this client talks to.
func (c *Client) Describe() string {
	return fmt.Sprintf("%s/%s", c.provider, c.modelName)
}

// SupportsSampling reports whether the model accepts sampling parameters
// such as temperature.
func SupportsSampling(modelName string) bool {
	name := strings.ToLower(modelName)
	for _, prefix := range noSamplingPrefixes {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}
