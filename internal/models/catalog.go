package models

// Category names the package bucket a model draws from once free-trial and
// premium allowances are gone. Models with CategoryNone can only be paid for
// by the free trial or a premium subscription.
type Category string

const (
	CategoryNone    Category = ""
	CategoryChatGPT Category = "chatgpt"
	CategoryClaude  Category = "claude"
	CategoryImage   Category = "image"
	CategoryVideo   Category = "video"
	CategorySuno    Category = "suno"
)

// ModelInfo describes one entry of the model catalog: the provider service
// whose API key it needs, the package category it debits, and its base cost
// per request. Thinking modes cost more than a plain request.
type ModelInfo struct {
	Name     string
	Service  string
	Category Category
	Cost     int
}

// catalog is the single owned model lookup table. Display code and the
// ledger both consult it; nothing else maps model names to categories.
var catalog = map[string]ModelInfo{
	"GPT-4o mini":              {Name: "GPT-4o mini", Service: "OpenAI", Category: CategoryChatGPT, Cost: 1},
	"GPT-4o":                   {Name: "GPT-4o", Service: "OpenAI", Category: CategoryChatGPT, Cost: 1},
	"GPT-4.1 mini":             {Name: "GPT-4.1 mini", Service: "OpenAI", Category: CategoryChatGPT, Cost: 1},
	"GPT-4.1":                  {Name: "GPT-4.1", Service: "OpenAI", Category: CategoryChatGPT, Cost: 1},
	"GPT-4.5":                  {Name: "GPT-4.5", Service: "OpenAI", Category: CategoryChatGPT, Cost: 2},
	"o3":                       {Name: "o3", Service: "OpenAI", Category: CategoryChatGPT, Cost: 2},
	"o4-mini":                  {Name: "o4-mini", Service: "OpenAI", Category: CategoryChatGPT, Cost: 1},
	"DALL-E 3":                 {Name: "DALL-E 3", Service: "OpenAI", Category: CategoryChatGPT, Cost: 1},
	"Claude 4 Sonnet":          {Name: "Claude 4 Sonnet", Service: "Claude", Category: CategoryClaude, Cost: 1},
	"Claude 4 Sonnet Thinking": {Name: "Claude 4 Sonnet Thinking", Service: "Claude", Category: CategoryClaude, Cost: 2},
	"Gemini 2.5":               {Name: "Gemini 2.5", Service: "Gemini", Category: CategoryNone, Cost: 1},
	"DeepSeek-V3":              {Name: "DeepSeek-V3", Service: "DeepSeek", Category: CategoryNone, Cost: 1},
	"Perplexity":               {Name: "Perplexity", Service: "Perplexity", Category: CategoryNone, Cost: 1},
	"Midjourney V7":            {Name: "Midjourney V7", Service: "Midjourney", Category: CategoryImage, Cost: 1},
	"Flux":                     {Name: "Flux", Service: "Flux", Category: CategoryImage, Cost: 1},
	"Kling 2.0":                {Name: "Kling 2.0", Service: "Kling", Category: CategoryVideo, Cost: 1},
	"Pika AI":                  {Name: "Pika AI", Service: "Pika", Category: CategoryVideo, Cost: 1},
	"Suno V4":                  {Name: "Suno V4", Service: "Suno", Category: CategorySuno, Cost: 1},
}

// DefaultModel is what new users start with.
const DefaultModel = "GPT-4o mini"

// LookupModel returns the catalog entry for a model name.
func LookupModel(name string) (ModelInfo, bool) {
	info, ok := catalog[name]
	return info, ok
}

// CategoryForModel maps a model name to its package category. Unknown models
// map to CategoryNone.
func CategoryForModel(name string) Category {
	return catalog[name].Category
}

// CostFor computes the request cost for a model and request type. Multi-page
// document analysis is charged double the model's base cost.
func CostFor(info ModelInfo, requestType RequestType) int {
	cost := info.Cost
	if cost <= 0 {
		cost = 1
	}
	if requestType == RequestTypeDocument {
		cost *= 2
	}
	return cost
}

// ModelNames lists the catalog in a stable order for keyboards and admin views.
func ModelNames() []string {
	names := make([]string, 0, len(catalog))
	for _, name := range []string{
		"GPT-4o mini", "GPT-4o", "GPT-4.1 mini", "GPT-4.1", "GPT-4.5", "o3", "o4-mini",
		"DALL-E 3", "Claude 4 Sonnet", "Claude 4 Sonnet Thinking", "Gemini 2.5",
		"DeepSeek-V3", "Perplexity", "Midjourney V7", "Flux", "Kling 2.0", "Pika AI", "Suno V4",
	} {
		if _, ok := catalog[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
