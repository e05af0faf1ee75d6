package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/greengrowth/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: s}}}
}

var seasonalReq = ActionRequest{
	StoreName:    "Home Depot Midtown",
	SignalType:   "Seasonal",
	Metric:       "High Vegetation Active (NDVI 0.55)",
	MarketSignal: "Grass is heavily active",
	LocationContext: map[string]any{
		"dcid":                 "geoId/3651000",
		"Median_Income_Person": 47012.5,
		"Count_Person":         8258035.0,
	},
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(seasonalReq)

	assert.Contains(t, p, `retail inventory expert for "Home Depot Midtown"`)
	assert.Contains(t, p, "- Signal Type: Seasonal\n")
	assert.Contains(t, p, "- Metric: High Vegetation Active (NDVI 0.55)\n")
	assert.Contains(t, p, "- Insight: Grass is heavily active\n")
	assert.Contains(t, p, "max 10 words")
	assert.NotContains(t, p, "geoId/3651000")
	assert.Less(t, strings.Index(p, "Count_Person"), strings.Index(p, "Median_Income_Person"))
}

func TestBuildPrompt_NoContext(t *testing.T) {
	p := BuildPrompt(ActionRequest{SignalType: "Growth"})
	assert.Contains(t, p, `"Store"`)
	assert.NotContains(t, p, "Location Context")

	p = BuildPrompt(ActionRequest{LocationContext: map[string]any{"dcid": "geoId/1"}})
	assert.NotContains(t, p, "Location Context")
}

func TestStockingAction(t *testing.T) {
	m := new(mockAnthropicClient)
	m.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 64 &&
			len(req.Messages) == 1 &&
			strings.Contains(req.Messages[0].Content, "Grass is heavily active")
	})).Return(textResponse("  \"Feature mowers, fertilizer and edging tools up front.\"\n"), nil)

	a := New(m, "claude-haiku-4-5-20251001", 0)
	got := a.StockingAction(context.Background(), seasonalReq)

	assert.Equal(t, "Feature mowers, fertilizer and edging tools up front.", got)
	m.AssertExpectations(t)
}

func TestStockingAction_Fallbacks(t *testing.T) {
	t.Run("no client", func(t *testing.T) {
		assert.Equal(t, FallbackAction, New(nil, "m", 64).StockingAction(context.Background(), seasonalReq))
	})

	t.Run("nil advisor", func(t *testing.T) {
		var a *Advisor
		assert.Equal(t, FallbackAction, a.StockingAction(context.Background(), seasonalReq))
	})

	t.Run("api error", func(t *testing.T) {
		m := new(mockAnthropicClient)
		m.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))
		assert.Equal(t, FallbackAction, New(m, "m", 64).StockingAction(context.Background(), seasonalReq))
	})

	t.Run("empty text", func(t *testing.T) {
		m := new(mockAnthropicClient)
		m.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil)
		assert.Equal(t, FallbackAction, New(m, "m", 64).StockingAction(context.Background(), seasonalReq))
	})
}
