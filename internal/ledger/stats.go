package ledger

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"ledger/internal/core"
)

// TotalBalance sums every amount. No records yield zero.
func TotalBalance(records []core.Record) core.Money {
	var total core.Money
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// ByCategoryNet sums amounts per category, exactly as spelled on the records.
func ByCategoryNet(records []core.Record) map[string]core.Money {
	net := make(map[string]core.Money)
	for _, r := range records {
		net[r.Category] = net[r.Category].Add(r.Amount)
	}
	return net
}

// ByCategoryCount counts records per category.
func ByCategoryCount(records []core.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Category]++
	}
	return counts
}

// Summarize computes every aggregate in one pass. ByCategory is sorted by
// absolute amount, largest first, then by name.
func Summarize(records []core.Record) core.Summary {
	s := core.Summary{
		Net:    make(map[string]core.Money),
		Counts: make(map[string]int),
	}
	for _, r := range records {
		s.Total = s.Total.Add(r.Amount)
		if r.Amount.IsNegative() {
			s.Expense = s.Expense.Sub(r.Amount)
		} else {
			s.Income = s.Income.Add(r.Amount)
		}
		s.Net[r.Category] = s.Net[r.Category].Add(r.Amount)
		s.Counts[r.Category]++
	}

	s.ByCategory = make([]core.CategoryAmount, 0, len(s.Net))
	for name, amount := range s.Net {
		s.ByCategory = append(s.ByCategory, core.CategoryAmount{Name: name, Amount: amount, Count: s.Counts[name]})
	}
	slices.SortFunc(s.ByCategory, func(a, b core.CategoryAmount) int {
		if c := b.Amount.Abs().Cmp(a.Amount.Abs()); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return s
}

// Statistics returns the summary of username's records. Concurrent calls
// for the same user share one computation; results are cached until the
// next mutation. A call never joins a computation that started before the
// latest mutation, so it always observes every mutation that returned
// before it.
func (s *Service) Statistics(ctx context.Context, username string) (core.Summary, error) {
	gen := s.gen.Load()
	if s.stats != nil {
		if sum, ok := s.stats.Get(username); ok {
			return cloneSummary(sum), nil
		}
	}

	key := username + "\x00" + strconv.FormatUint(gen, 10)
	v, err, _ := s.group.Do(key, func() (any, error) {
		acct, err := s.account(ctx, username)
		if err != nil {
			return core.Summary{}, err
		}
		sum := Summarize(acct.Records)
		s.fillStats(username, gen, sum)
		return sum, nil
	})
	if err != nil {
		return core.Summary{}, fmt.Errorf("statistics: %w", err)
	}
	return cloneSummary(v.(core.Summary)), nil
}

// fillStats caches sum unless a mutation landed since gen was read.
func (s *Service) fillStats(username string, gen uint64, sum core.Summary) {
	if s.stats == nil {
		return
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.gen.Load() == gen {
		s.stats.Set(username, sum)
	}
}

func cloneSummary(s core.Summary) core.Summary {
	s.Net = maps.Clone(s.Net)
	s.Counts = maps.Clone(s.Counts)
	s.ByCategory = slices.Clone(s.ByCategory)
	return s
}
