package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rory503/complaintwatch/internal/complaints"
)

func rec(id, product, issue, company, narrative string) complaints.Record {
	return complaints.Record{
		ID:        id,
		Received:  time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		Product:   product,
		Issue:     issue,
		Company:   company,
		Narrative: narrative,
	}
}

func TestAnalyze_Rankings(t *testing.T) {
	records := []complaints.Record{
		rec("1", "Mortgage", "Trouble during payment process", "ACME BANK", "lost my payment"),
		rec("2", "Mortgage", "Trouble during payment process", "ACME BANK", "payment misapplied"),
		rec("3", "Mortgage", "Applying for a mortgage", "ACME BANK", "denied unfairly"),
		rec("4", "Checking or savings account", "Managing an account", "FIRST TRUST", "fee dispute"),
		rec("5", "Checking or savings account", "Managing an account", "FIRST TRUST", "frozen account"),
		rec("6", "Debt collection", "Attempts to collect debt not owed", "COLLECTCO", "not my debt"),
	}

	report := Analyze(records, Options{})

	assert.Equal(t, 6, report.TotalRecords)
	assert.Equal(t, 6, report.AnalyzedRecords)
	assert.Equal(t, 6, report.WithNarratives)

	require.NotEmpty(t, report.TopProducts)
	assert.Equal(t, ProductCount{Product: "Mortgage", Count: 3}, report.TopProducts[0])

	require.NotEmpty(t, report.TopIssues)
	assert.Equal(t, IssueCount{Issue: "Managing an account", Count: 2}, report.TopIssues[0])
	assert.Equal(t, IssueCount{Issue: "Trouble during payment process", Count: 2}, report.TopIssues[1])

	require.NotEmpty(t, report.TopCombos)
	assert.Equal(t, ComboCount{
		Product: "Checking or savings account",
		Issue:   "Managing an account",
		Count:   2,
	}, report.TopCombos[0])

	require.NotEmpty(t, report.TopCompanies)
	assert.Equal(t, CompanyStats{
		Company:  "ACME BANK",
		Count:    3,
		TopIssue: "Trouble during payment process",
	}, report.TopCompanies[0])
}

func TestAnalyze_ExcludesCreditReportingProducts(t *testing.T) {
	records := []complaints.Record{
		rec("1", "Credit reporting, credit repair services, or other personal consumer reports",
			"Incorrect information on your report", "EQUIFAX, INC.", "wrong info"),
		rec("2", "Credit reporting", "Incorrect information on your report", "EXPERIAN", "wrong info"),
		rec("3", "Credit repair services", "Fraud or scam", "FIX MY CREDIT LLC", "scam"),
		rec("4", "Other personal consumer reports", "Improper use of your report", "CHECKR", "background check"),
		rec("5", "Mortgage", "Trouble during payment process", "ACME BANK", "lost payment"),
	}

	report := Analyze(records, Options{})

	assert.Equal(t, 5, report.TotalRecords)
	assert.Equal(t, 1, report.AnalyzedRecords)

	require.Len(t, report.TopProducts, 1)
	assert.Equal(t, "Mortgage", report.TopProducts[0].Product)

	require.Len(t, report.TopCompanies, 1)
	assert.Equal(t, "ACME BANK", report.TopCompanies[0].Company)
}

func TestAnalyze_ExcludesCreditAgenciesFromCompanies(t *testing.T) {
	records := []complaints.Record{
		rec("1", "Debt collection", "Attempts to collect debt not owed", "EQUIFAX, INC.", "n"),
		rec("2", "Debt collection", "Attempts to collect debt not owed", "Experian Information Solutions, Inc.", "n"),
		rec("3", "Debt collection", "Attempts to collect debt not owed", "TRANSUNION INTERMEDIATE HOLDINGS, INC.", "n"),
		rec("4", "Debt collection", "Attempts to collect debt not owed", "COLLECTCO", "n"),
	}

	report := Analyze(records, Options{})

	// The agency complaints still count toward product and issue trends.
	require.Len(t, report.TopProducts, 1)
	assert.Equal(t, 4, report.TopProducts[0].Count)

	require.Len(t, report.TopCompanies, 1)
	assert.Equal(t, "COLLECTCO", report.TopCompanies[0].Company)
}

func TestAnalyze_NarrativesOnly(t *testing.T) {
	records := []complaints.Record{
		rec("1", "Mortgage", "Applying for a mortgage", "ACME BANK", "a narrative"),
		rec("2", "Mortgage", "Applying for a mortgage", "ACME BANK", ""),
		rec("3", "Mortgage", "Applying for a mortgage", "ACME BANK", "   "),
	}

	report := Analyze(records, Options{NarrativesOnly: true})

	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 1, report.AnalyzedRecords)
	assert.Equal(t, 1, report.WithNarratives)

	require.Len(t, report.TopProducts, 1)
	assert.Equal(t, 1, report.TopProducts[0].Count)
}

func TestAnalyze_TopNCapsRankings(t *testing.T) {
	var records []complaints.Record

	products := []string{"Mortgage", "Debt collection", "Student loan", "Vehicle loan or lease", "Payday loan"}

	for i, product := range products {
		// i+1 occurrences so every product has a distinct count.
		for n := 0; n < i+1; n++ {
			records = append(records, rec("x", product, "Some issue", "SOME CO", "n"))
		}
	}

	report := Analyze(records, Options{TopN: 3})

	require.Len(t, report.TopProducts, 3)
	assert.Equal(t, "Payday loan", report.TopProducts[0].Product)
	assert.Equal(t, 5, report.TopProducts[0].Count)
}

func TestAnalyze_DeterministicTieBreak(t *testing.T) {
	records := []complaints.Record{
		rec("1", "Zeta product", "issue", "CO", "n"),
		rec("2", "Alpha product", "issue", "CO", "n"),
	}

	report := Analyze(records, Options{})

	require.Len(t, report.TopProducts, 2)
	assert.Equal(t, "Alpha product", report.TopProducts[0].Product)
	assert.Equal(t, "Zeta product", report.TopProducts[1].Product)
}

func TestAnalyze_Empty(t *testing.T) {
	report := Analyze(nil, Options{})

	assert.Equal(t, 0, report.TotalRecords)
	assert.Empty(t, report.TopProducts)
	assert.Empty(t, report.TopIssues)
	assert.Empty(t, report.TopCombos)
	assert.Empty(t, report.TopCompanies)
}
