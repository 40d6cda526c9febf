// Package analysis summarizes a complaint dataset: top products, issues,
// product/issue combinations, and most-complained-about companies.
package analysis

import (
	"sort"
	"strings"

	"github.com/rory503/complaintwatch/internal/complaints"
)

// Product categories dominated by credit-reporting disputes. They drown out
// every other signal, so trend rankings exclude them.
var creditReportingProducts = map[string]struct{}{
	"Credit reporting, credit repair services, or other personal consumer reports": {},
	"Credit reporting":                {},
	"Credit repair services":          {},
	"Other personal consumer reports": {},
}

// The three national credit bureaus under the names they file under.
// Excluded from company rankings for the same reason as above.
var creditAgencies = map[string]struct{}{
	"EQUIFAX, INC.":                            {},
	"EQUIFAX":                                  {},
	"Equifax Information Services LLC":         {},
	"Experian Information Solutions, Inc.":     {},
	"EXPERIAN INFORMATION SOLUTIONS INC.":      {},
	"EXPERIAN":                                 {},
	"TransUnion Intermediate Holdings, Inc.":   {},
	"TRANSUNION INTERMEDIATE HOLDINGS, INC.":   {},
}

// ProductCount is one row of a product ranking.
type ProductCount struct {
	Product string `json:"product"`
	Count   int    `json:"count"`
}

// IssueCount is one row of an issue ranking.
type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

// ComboCount is one row of a product/issue pair ranking.
type ComboCount struct {
	Product string `json:"product"`
	Issue   string `json:"issue"`
	Count   int    `json:"count"`
}

// CompanyStats is one row of a company ranking, with the issue most often
// raised against that company.
type CompanyStats struct {
	Company  string `json:"company"`
	Count    int    `json:"count"`
	TopIssue string `json:"top_issue"`
}

// Report is the full trend summary for one dataset.
//
//nolint:tagliatelle // superior snake-case yo.
type Report struct {
	TotalRecords    int            `json:"total_records"`
	AnalyzedRecords int            `json:"analyzed_records"`
	WithNarratives  int            `json:"with_narratives"`
	TopProducts     []ProductCount `json:"top_products"`
	TopIssues       []IssueCount   `json:"top_issues"`
	TopCombos       []ComboCount   `json:"top_product_issues"`
	TopCompanies    []CompanyStats `json:"top_companies"`
}

// Options tunes an analysis run.
type Options struct {
	// TopN caps each ranking. Zero means the default of 10.
	TopN int

	// NarrativesOnly keeps only complaints carrying a consumer narrative,
	// which filters out bulk-filed disputes.
	NarrativesOnly bool
}

const defaultTopN = 10

// Analyze builds the trend report for a set of records. Rankings order by
// count descending with name ascending as the tiebreak, so output is
// deterministic for a given input.
func Analyze(records []complaints.Record, opts Options) *Report {
	topN := opts.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	report := &Report{
		TotalRecords: len(records),
		TopProducts:  []ProductCount{},
		TopIssues:    []IssueCount{},
		TopCombos:    []ComboCount{},
		TopCompanies: []CompanyStats{},
	}

	productCounts := make(map[string]int)
	issueCounts := make(map[string]int)
	comboCounts := make(map[[2]string]int)
	companyCounts := make(map[string]int)
	companyIssues := make(map[string]map[string]int)

	for _, rec := range records {
		if strings.TrimSpace(rec.Narrative) != "" {
			report.WithNarratives++
		}

		if opts.NarrativesOnly && strings.TrimSpace(rec.Narrative) == "" {
			continue
		}

		if _, excluded := creditReportingProducts[rec.Product]; excluded {
			continue
		}

		report.AnalyzedRecords++

		if rec.Product != "" {
			productCounts[rec.Product]++
		}

		if rec.Issue != "" {
			issueCounts[rec.Issue]++
		}

		if rec.Product != "" && rec.Issue != "" {
			comboCounts[[2]string{rec.Product, rec.Issue}]++
		}

		if rec.Company == "" {
			continue
		}

		if _, excluded := creditAgencies[rec.Company]; excluded {
			continue
		}

		companyCounts[rec.Company]++

		if rec.Issue != "" {
			if companyIssues[rec.Company] == nil {
				companyIssues[rec.Company] = make(map[string]int)
			}

			companyIssues[rec.Company][rec.Issue]++
		}
	}

	for product, count := range productCounts {
		report.TopProducts = append(report.TopProducts, ProductCount{Product: product, Count: count})
	}

	sort.Slice(report.TopProducts, func(i, j int) bool {
		a, b := report.TopProducts[i], report.TopProducts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}

		return a.Product < b.Product
	})

	for issue, count := range issueCounts {
		report.TopIssues = append(report.TopIssues, IssueCount{Issue: issue, Count: count})
	}

	sort.Slice(report.TopIssues, func(i, j int) bool {
		a, b := report.TopIssues[i], report.TopIssues[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}

		return a.Issue < b.Issue
	})

	for combo, count := range comboCounts {
		report.TopCombos = append(report.TopCombos, ComboCount{
			Product: combo[0],
			Issue:   combo[1],
			Count:   count,
		})
	}

	sort.Slice(report.TopCombos, func(i, j int) bool {
		a, b := report.TopCombos[i], report.TopCombos[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}

		if a.Product != b.Product {
			return a.Product < b.Product
		}

		return a.Issue < b.Issue
	})

	for company, count := range companyCounts {
		report.TopCompanies = append(report.TopCompanies, CompanyStats{
			Company:  company,
			Count:    count,
			TopIssue: topIssueFor(companyIssues[company]),
		})
	}

	sort.Slice(report.TopCompanies, func(i, j int) bool {
		a, b := report.TopCompanies[i], report.TopCompanies[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}

		return a.Company < b.Company
	})

	report.TopProducts = truncate(report.TopProducts, topN)
	report.TopIssues = truncate(report.TopIssues, topN)
	report.TopCombos = truncate(report.TopCombos, topN)
	report.TopCompanies = truncate(report.TopCompanies, topN)

	return report
}

func topIssueFor(counts map[string]int) string {
	var (
		best      string
		bestCount int
	)

	for issue, count := range counts {
		if count > bestCount || (count == bestCount && issue < best) {
			best = issue
			bestCount = count
		}
	}

	return best
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}

	return s
}
