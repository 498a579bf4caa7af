package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
	Count  int    `json:"count"`
}

// Summary holds the aggregates computed over one user's records.
type Summary struct {
	Total      Money            `json:"total"`
	Income     Money            `json:"income"`
	Expense    Money            `json:"expense"`
	Net        map[string]Money `json:"by_category"`
	Counts     map[string]int   `json:"count_by_category"`
	ByCategory []CategoryAmount `json:"categories"`
}
