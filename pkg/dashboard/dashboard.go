// Package dashboard aggregates saved receipts for the spending overview.
package dashboard

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-analyze/charts"

	"gastos/pkg/money"
)

// topVendors is how many vendors the summary lists.
const topVendors = 5

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("no receipts to chart")

// Receipt is the part of a saved receipt the dashboard reads.
type Receipt struct {
	Date        time.Time
	Total       money.Amount
	TaxAmount   money.Amount
	Category    string
	Vendor      string
	NeedsReview bool
}

// CategoryTotal is the spending of one category.
type CategoryTotal struct {
	Category string       `json:"category"`
	Total    money.Amount `json:"total"`
	Count    int          `json:"count"`
	Share    float64      `json:"share"`
}

// MonthTotal is the spending of one calendar month, keyed "YYYY-MM".
type MonthTotal struct {
	Month string       `json:"month"`
	Total money.Amount `json:"total"`
	Count int          `json:"count"`
}

// VendorTotal is the spending at one vendor.
type VendorTotal struct {
	Vendor string       `json:"vendor"`
	Total  money.Amount `json:"total"`
	Count  int          `json:"count"`
}

// Summary is the dashboard payload.
type Summary struct {
	Count       int             `json:"count"`
	Total       money.Amount    `json:"total"`
	TaxTotal    money.Amount    `json:"tax_total"`
	Average     money.Amount    `json:"average"`
	NeedsReview int             `json:"needs_review"`
	ByCategory  []CategoryTotal `json:"by_category"`
	ByMonth     []MonthTotal    `json:"by_month"`
	TopVendors  []VendorTotal   `json:"top_vendors"`
}

// Summarize computes totals, category and month breakdowns and the top vendors.
// Categories and vendors are ordered by total descending, months ascending.
func Summarize(receipts []Receipt) Summary {
	s := Summary{ByCategory: []CategoryTotal{}, ByMonth: []MonthTotal{}, TopVendors: []VendorTotal{}}
	cats := map[string]*CategoryTotal{}
	months := map[string]*MonthTotal{}
	vendors := map[string]*VendorTotal{}

	for _, r := range receipts {
		s.Count++
		s.Total += r.Total
		s.TaxTotal += r.TaxAmount
		if r.NeedsReview {
			s.NeedsReview++
		}
		c := cats[r.Category]
		if c == nil {
			c = &CategoryTotal{Category: r.Category}
			cats[r.Category] = c
		}
		c.Total += r.Total
		c.Count++

		key := r.Date.Format("2006-01")
		m := months[key]
		if m == nil {
			m = &MonthTotal{Month: key}
			months[key] = m
		}
		m.Total += r.Total
		m.Count++

		v := vendors[r.Vendor]
		if v == nil {
			v = &VendorTotal{Vendor: r.Vendor}
			vendors[r.Vendor] = v
		}
		v.Total += r.Total
		v.Count++
	}
	if s.Count == 0 {
		return s
	}
	s.Average = money.FromFloat(s.Total.Float64() / float64(s.Count))

	for _, c := range cats {
		if s.Total > 0 {
			c.Share = float64(c.Total) / float64(s.Total)
		}
		s.ByCategory = append(s.ByCategory, *c)
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		a, b := s.ByCategory[i], s.ByCategory[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Category < b.Category
	})

	for _, m := range months {
		s.ByMonth = append(s.ByMonth, *m)
	}
	sort.Slice(s.ByMonth, func(i, j int) bool { return s.ByMonth[i].Month < s.ByMonth[j].Month })

	for _, v := range vendors {
		s.TopVendors = append(s.TopVendors, *v)
	}
	sort.Slice(s.TopVendors, func(i, j int) bool {
		a, b := s.TopVendors[i], s.TopVendors[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Vendor < b.Vendor
	})
	if len(s.TopVendors) > topVendors {
		s.TopVendors = s.TopVendors[:topVendors]
	}
	return s
}

// CategoryChart renders the category breakdown as a PNG pie chart.
func CategoryChart(s Summary, title string) ([]byte, error) {
	var values []float64
	var names []string
	for _, c := range s.ByCategory {
		if c.Total <= 0 {
			continue
		}
		values = append(values, c.Total.Float64())
		names = append(names, c.Category)
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{Text: title}),
		charts.LegendLabelsOptionFunc(names),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf, nil
}
