// Package nutrition turns free-form food descriptions into dishes with
// calories and macronutrients using an OpenAI-compatible chat model.
package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/observe"
)

// ErrNoDishes is returned when the model reply contains no usable dish.
var ErrNoDishes = errors.New("nutrition: no dishes in reply")

const systemPrompt = "Ты помощник для подсчёта КБЖУ. Всегда отвечай только в формате JSON."

const analyzePrompt = `Проанализируй текст с описанием еды и верни JSON со списком блюд и их КБЖУ.
Для каждого блюда оцени вес порции в граммах.
Формат: {"dishes": [{"name": "название", "calories": число, "protein": число, "fat": число, "carbs": число, "grams": число}]}
Всегда отвечай только в этом формате.

Текст пользователя: %s`

const revisePrompt = `Пользователь записал приём пищи из %d блюд:
%s
Он просит внести изменения: %s

Верни ровно %d блюд в том же порядке, по одному на каждое исходное блюдо, с пересчитанным КБЖУ.
Формат: {"dishes": [{"name": "название", "calories": число, "protein": число, "fat": число, "carbs": число, "grams": число}]}
Всегда отвечай только в этом формате.`

// Client calls the chat completions API.
type Client struct {
	client      oai.Client
	model       string
	temperature float64
	maxTokens   int
	fallback    bool
	metrics     *observe.Metrics
}

type config struct {
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	temperature float64
	fallback    bool
	metrics     *observe.Metrics
}

// Option configures a Client.
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the SDK retries a failed request.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithTemperature sets the sampling temperature. Default 0.3.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
}

// WithFallback makes Analyze split the text into default-valued dishes when
// the model fails instead of returning an error.
func WithFallback(enabled bool) Option {
	return func(c *config) { c.fallback = enabled }
}

// WithMetrics records call latency and errors on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// New constructs a Client for model.
func New(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("nutrition: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("nutrition: model must not be empty")
	}

	cfg := &config{temperature: 0.3, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	metrics := cfg.metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Client{
		client:      oai.NewClient(reqOpts...),
		model:       model,
		temperature: cfg.temperature,
		maxTokens:   1000,
		fallback:    cfg.fallback,
		metrics:     metrics,
	}, nil
}

// Analyze extracts the dishes described by text, in mention order.
func (c *Client) Analyze(ctx context.Context, text string) ([]models.Dish, error) {
	dishes, err := c.ask(ctx, "analyze", fmt.Sprintf(analyzePrompt, text))
	if err == nil && len(dishes) == 0 {
		err = ErrNoDishes
	}
	if err != nil {
		if c.fallback {
			slog.Warn("nutrition: analysis failed, using fallback", "err", err)
			if fb := FallbackDishes(text); len(fb) > 0 {
				return fb, nil
			}
		}
		return nil, err
	}
	return dishes, nil
}

// ReviseGroup applies instruction to originals and returns one dish per
// original in the same order. The caller checks the count.
func (c *Client) ReviseGroup(ctx context.Context, originals []models.FoodEntry, instruction string) ([]models.Dish, error) {
	var list strings.Builder
	for i, e := range originals {
		fmt.Fprintf(&list, "%d. %s, %d г: %d ккал, %d белков, %d жиров, %d углеводов\n",
			i+1, e.Name, e.Grams, e.Calories, e.Protein, e.Fat, e.Carbs)
	}
	prompt := fmt.Sprintf(revisePrompt, len(originals), list.String(), instruction, len(originals))

	dishes, err := c.ask(ctx, "revise", prompt)
	if err != nil {
		return nil, err
	}
	if len(dishes) == 0 {
		return nil, ErrNoDishes
	}
	return dishes, nil
}

func (c *Client) ask(ctx context.Context, kind, prompt string) (dishes []models.Dish, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordProvider(ctx, kind, start, err) }()

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(prompt),
		},
		Temperature:         param.NewOpt(c.temperature),
		MaxCompletionTokens: param.NewOpt(int64(c.maxTokens)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("nutrition: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("nutrition: empty choices in response")
	}
	return ParseDishes(resp.Choices[0].Message.Content)
}

// ParseDishes reads the dishes out of a model reply. Code fences and text
// around the outermost JSON object are ignored. Nameless dishes are dropped,
// missing values get defaults and every value is clamped to a sane range.
func ParseDishes(reply string) ([]models.Dish, error) {
	clean := strings.ReplaceAll(reply, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("nutrition: no JSON object in reply")
	}

	var payload struct {
		Dishes []map[string]any `json:"dishes"`
	}
	if err := json.Unmarshal([]byte(clean[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("nutrition: decode reply: %w", err)
	}

	dishes := make([]models.Dish, 0, len(payload.Dishes))
	for _, raw := range payload.Dishes {
		name, _ := raw["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dishes = append(dishes, models.Dish{
			Name:     name,
			Calories: clamp(number(raw["calories"], 300), 0, 2000),
			Protein:  clamp(number(raw["protein"], 10), 0, 100),
			Fat:      clamp(number(raw["fat"], 10), 0, 100),
			Carbs:    clamp(number(raw["carbs"], 40), 0, 200),
			Grams:    clamp(number(raw["grams"], 0), 0, 5000),
		})
	}
	return dishes, nil
}

// number converts a JSON number or numeric string, rounding to the nearest
// integer. Anything else yields def.
func number(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(n, ",", ".")), 64)
		if err != nil {
			return def
		}
		return int(math.Round(f))
	default:
		return def
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// FallbackDishes splits text on " и " or ", " and returns one dish with
// default values per part.
func FallbackDishes(text string) []models.Dish {
	var parts []string
	switch {
	case strings.Contains(text, " и "):
		parts = strings.Split(text, " и ")
	case strings.Contains(text, ", "):
		parts = strings.Split(text, ", ")
	default:
		parts = []string{text}
	}

	var dishes []models.Dish
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		dishes = append(dishes, models.Dish{Name: p, Calories: 300, Protein: 12, Fat: 8, Carbs: 40})
	}
	return dishes
}
