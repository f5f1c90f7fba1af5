package betonara

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReportAggregatesReadSameSnapshot(t *testing.T) {
	where, args := filterClause(ReportFilter{
		From:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		CompanyID: 3,
		Plant:     "Sjever",
	}, "t", "day")
	assert.Len(t, args, 4)

	for name, query := range map[string]string{
		"daily": dailyTotalsQuery(where),
		"class": classTotalsQuery(where),
	} {
		assert.Contains(t, query, "FROM betonara_daily_totals t", name)
		assert.NotContains(t, query, "betonara_entries", name)
		assert.Contains(t, query, "t.day BETWEEN $1 AND $2 AND t.company_id = $3 AND t.plant = $4", name)
	}
}
