// Package advisor writes a short stocking recommendation for a store from a
// market signal, using a language model.
package advisor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/greengrowth/pkg/anthropic"
)

// FallbackAction is returned whenever a recommendation cannot be generated.
const FallbackAction = "Check relevant inventory based on signal."

const systemPrompt = "You are a retail inventory expert. Answer with the stocking action text only."

// ActionRequest describes the signal a recommendation is written for.
type ActionRequest struct {
	StoreName       string         `json:"store_name"`
	SignalType      string         `json:"signal_type"`
	Metric          string         `json:"metric"`
	MarketSignal    string         `json:"market_signal"`
	ActionCategory  string         `json:"action_category,omitempty"`
	LocationContext map[string]any `json:"location_context,omitempty"`
}

// Advisor generates stocking actions.
type Advisor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates an Advisor. A nil client makes every call return
// FallbackAction.
func New(client anthropic.Client, model string, maxTokens int64) *Advisor {
	if maxTokens <= 0 {
		maxTokens = 64
	}
	return &Advisor{client: client, model: model, maxTokens: maxTokens}
}

// StockingAction returns a concise recommendation. It never fails.
func (a *Advisor) StockingAction(ctx context.Context, req ActionRequest) string {
	if a == nil || a.client == nil {
		return FallbackAction
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: BuildPrompt(req)}},
	})
	if err != nil {
		zap.L().Warn("advisor: generation failed, using fallback",
			zap.String("store", req.StoreName),
			zap.Error(err),
		)
		return FallbackAction
	}
	resp.Usage.LogCost(a.model, "stocking_action")

	text := strings.Trim(strings.TrimSpace(resp.Text()), `"`)
	if text == "" {
		return FallbackAction
	}
	return text
}

// BuildPrompt renders the recommendation prompt. Location context entries
// other than the place id are listed in key order.
func BuildPrompt(req ActionRequest) string {
	name := req.StoreName
	if name == "" {
		name = "Store"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a retail inventory expert for %q.\n", name)
	sb.WriteString("Current Intelligence:\n")
	fmt.Fprintf(&sb, "- Signal Type: %s\n", req.SignalType)
	fmt.Fprintf(&sb, "- Metric: %s\n", req.Metric)
	fmt.Fprintf(&sb, "- Insight: %s\n", req.MarketSignal)
	if req.ActionCategory != "" {
		fmt.Fprintf(&sb, "- Action Category: %s\n", req.ActionCategory)
	}

	keys := make([]string, 0, len(req.LocationContext))
	for k := range req.LocationContext {
		if k == "dcid" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		sb.WriteString("Location Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %v\n", k, req.LocationContext[k])
		}
	}

	sb.WriteString("Based on this, suggest a concise (max 10 words) and high-impact stocking action for the store manager.\n")
	sb.WriteString("Focus on specific product categories relevant to the signal.\n")
	sb.WriteString("Output ONLY the stocking action text.")
	return sb.String()
}
