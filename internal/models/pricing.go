package models

// SubscriptionPlan is a purchasable premium tier: a wallet price buying a
// daily request allowance for a number of days.
type SubscriptionPlan struct {
	Code       string
	Title      string
	Price      int64
	Days       int
	DailyLimit int
}

// PackageOffer is a purchasable credit bucket for one category.
type PackageOffer struct {
	Code     string
	Category Category
	Price    int64
	Credits  int
}

// Subscription and package price tables. Prices are in wallet currency units.
var (
	PremiumPlan   = SubscriptionPlan{Code: "premium", Title: "Premium", Price: 350, Days: 30, DailyLimit: 100}
	PremiumX2Plan = SubscriptionPlan{Code: "premium_x2", Title: "Premium x2", Price: 600, Days: 30, DailyLimit: 200}

	PackageOffers = []PackageOffer{
		{Code: "chatgpt_100", Category: CategoryChatGPT, Price: 150, Credits: 100},
		{Code: "chatgpt_300", Category: CategoryChatGPT, Price: 400, Credits: 300},
		{Code: "claude_100", Category: CategoryClaude, Price: 200, Credits: 100},
		{Code: "claude_300", Category: CategoryClaude, Price: 550, Credits: 300},
		{Code: "image_50", Category: CategoryImage, Price: 250, Credits: 50},
		{Code: "image_150", Category: CategoryImage, Price: 650, Credits: 150},
		{Code: "video_10", Category: CategoryVideo, Price: 300, Credits: 10},
		{Code: "video_30", Category: CategoryVideo, Price: 800, Credits: 30},
		{Code: "suno_20", Category: CategorySuno, Price: 100, Credits: 20},
		{Code: "suno_60", Category: CategorySuno, Price: 260, Credits: 60},
	}
)

// LookupPlan finds a subscription plan by code.
func LookupPlan(code string) (SubscriptionPlan, bool) {
	switch code {
	case PremiumPlan.Code:
		return PremiumPlan, true
	case PremiumX2Plan.Code:
		return PremiumX2Plan, true
	}
	return SubscriptionPlan{}, false
}

// LookupPackageOffer finds a package offer by code.
func LookupPackageOffer(code string) (PackageOffer, bool) {
	for _, offer := range PackageOffers {
		if offer.Code == code {
			return offer, true
		}
	}
	return PackageOffer{}, false
}
