package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupModel(t *testing.T) {
	info, ok := LookupModel("Claude 4 Sonnet")
	require.True(t, ok)
	assert.Equal(t, "Claude", info.Service)
	assert.Equal(t, CategoryClaude, info.Category)

	_, ok = LookupModel("GPT-9000")
	assert.False(t, ok)
}

func TestCategoryForModel(t *testing.T) {
	assert.Equal(t, CategoryChatGPT, CategoryForModel("GPT-4o"))
	assert.Equal(t, CategoryChatGPT, CategoryForModel("DALL-E 3"))
	assert.Equal(t, CategoryImage, CategoryForModel("Midjourney V7"))
	assert.Equal(t, CategoryVideo, CategoryForModel("Kling 2.0"))
	assert.Equal(t, CategorySuno, CategoryForModel("Suno V4"))
	assert.Equal(t, CategoryNone, CategoryForModel("Gemini 2.5"))
	assert.Equal(t, CategoryNone, CategoryForModel("does not exist"))
}

func TestCostFor(t *testing.T) {
	sonnet, _ := LookupModel("Claude 4 Sonnet")
	thinking, _ := LookupModel("Claude 4 Sonnet Thinking")

	assert.Equal(t, 1, CostFor(sonnet, RequestTypeText))
	assert.Equal(t, 2, CostFor(thinking, RequestTypeText))
	assert.Equal(t, 2, CostFor(sonnet, RequestTypeDocument))
	assert.Equal(t, 4, CostFor(thinking, RequestTypeDocument))
	assert.Equal(t, 1, CostFor(ModelInfo{}, RequestTypeText))
}

func TestModelNamesCoversCatalog(t *testing.T) {
	names := ModelNames()
	require.Len(t, names, 18)
	assert.Equal(t, DefaultModel, names[0])
	for _, name := range names {
		_, ok := LookupModel(name)
		assert.True(t, ok, "name %q missing from catalog", name)
	}
}

func TestPremiumActive(t *testing.T) {
	today := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	u := User{}
	assert.False(t, u.PremiumActive(today))

	exp := today
	u.PremiumExpiry = &exp
	assert.True(t, u.PremiumActive(today), "expiry day itself is still covered")

	past := today.AddDate(0, 0, -1)
	u.PremiumExpiry = &past
	assert.False(t, u.PremiumActive(today))
}

func TestFreeTrialExpired(t *testing.T) {
	today := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	u := User{}
	assert.True(t, u.FreeTrialExpired(today), "no grant counts as expired")

	exp := today
	u.FreeExpiry = &exp
	assert.False(t, u.FreeTrialExpired(today))

	past := today.AddDate(0, 0, -1)
	u.FreeExpiry = &past
	assert.True(t, u.FreeTrialExpired(today))
}

func TestLookupPlanAndOffer(t *testing.T) {
	plan, ok := LookupPlan("premium")
	require.True(t, ok)
	assert.Equal(t, 100, plan.DailyLimit)

	plan, ok = LookupPlan("premium_x2")
	require.True(t, ok)
	assert.Equal(t, 200, plan.DailyLimit)

	_, ok = LookupPlan("gold")
	assert.False(t, ok)

	offer, ok := LookupPackageOffer("claude_100")
	require.True(t, ok)
	assert.Equal(t, CategoryClaude, offer.Category)
	assert.Equal(t, 100, offer.Credits)

	_, ok = LookupPackageOffer("claude_1000000")
	assert.False(t, ok)
}
