package domain

// Category is one bucket of the fixed market classification.
type Category string

const (
	CategoryNFL          Category = "NFL Football"
	CategoryNCAAFootball Category = "NCAA Football"
	CategoryMLB          Category = "MLB Baseball"
	// CategoryNBA also covers the WNBA and NCAA men's basketball.
	CategoryNBA      Category = "NBA Basketball"
	CategoryNHL      Category = "NHL Hockey"
	CategorySoccer   Category = "Soccer"
	CategoryTennis   Category = "Tennis"
	CategoryCrypto   Category = "Cryptocurrency"
	CategoryPolitics Category = "Politics/Elections"
	CategoryOther    Category = "Other"
)
