package domain

import "time"

// Category classifies a prediction market and selects which data source
// adapters participate in its resolution. The set is closed; it is the only
// type shared with the UI and CLI layers.
type Category string

const (
	CategoryCrypto        Category = "crypto"
	CategorySports        Category = "sports"
	CategoryPolitics      Category = "politics"
	CategoryWeather       Category = "weather"
	CategoryEntertainment Category = "entertainment"
	CategoryTechnology    Category = "technology"
	CategoryFinance       Category = "finance"
	CategoryOther         Category = "other"
)

// Categories lists every valid category in contract-enum order. The index of
// a category in this slice matches the uint8 the market contract stores.
var Categories = []Category{
	CategoryCrypto,
	CategorySports,
	CategoryPolitics,
	CategoryWeather,
	CategoryEntertainment,
	CategoryTechnology,
	CategoryFinance,
	CategoryOther,
}

// CategoryFromIndex converts the contract's uint8 category code to a
// Category. Unknown codes map to CategoryOther.
func CategoryFromIndex(i uint8) Category {
	if int(i) < len(Categories) {
		return Categories[i]
	}
	return CategoryOther
}

// Market is a read-only snapshot of an on-chain prediction market. The
// pipeline never mutates it; a resolution attempt operates on the snapshot
// taken when the attempt started.
type Market struct {
	ID          string
	Question    string
	Description string
	Category    Category
	Creator     string
	EndTime     time.Time
	Resolved    bool
	Outcome     *bool
}

// Query is the adapter-facing view of a market question. Adapters derive
// provider-specific queries (trading pair, team names, city, keywords) from
// its free-text fields.
type Query struct {
	MarketID string
	Question string
	Category Category
	EndTime  time.Time
}

// QueryForMarket builds the adapter query for a market snapshot.
func QueryForMarket(m Market) Query {
	return Query{
		MarketID: m.ID,
		Question: m.Question,
		Category: m.Category,
		EndTime:  m.EndTime,
	}
}
