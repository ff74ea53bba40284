package repository

import (
	"regexp"
	"testing"
)

// The column constants are spliced between SELECT and FROM keywords, so they
// must begin and end with whitespace or the generated SQL fuses keywords into
// identifiers.
func TestColumnConstantsDelimitKeywords(t *testing.T) {
	constants := map[string]string{
		"approvalColumns":      approvalColumns,
		"travelRequestColumns": travelRequestColumns,
		"claimColumns":         claimColumns,
		"bailoutColumns":       bailoutColumns,
		"userColumns":          userColumns,
	}

	fusedSelect := regexp.MustCompile(`SELECT[^\s]`)
	fusedFrom := regexp.MustCompile(`[^\s]FROM`)

	for name, cols := range constants {
		query := `SELECT` + cols + `FROM some_table WHERE id = $1`
		if fusedSelect.MatchString(query) {
			t.Errorf("%s fuses the first column into SELECT: %q", name, query)
		}
		if fusedFrom.MatchString(query) {
			t.Errorf("%s fuses the last column into FROM: %q", name, query)
		}
	}
}
