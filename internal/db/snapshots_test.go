package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yproz/tg-bots/internal/models"
)

func TestBuildSnapshotQuery(t *testing.T) {
	now := time.Now()

	t.Run("All_Markets", func(t *testing.T) {
		query, args := buildSnapshotQuery(nil, " AND r.timestamp < $2", []interface{}{"SEB", now})

		assert.Contains(t, query, "DISTINCT ON (r.product_code)")
		assert.NotContains(t, query, "a.market =")
		assert.Contains(t, query, "ORDER BY r.product_code, r.timestamp DESC")
		assert.Len(t, args, 2)
	})

	t.Run("Filtered_By_Market", func(t *testing.T) {
		m := models.MarketWB
		query, args := buildSnapshotQuery(&m, " AND r.timestamp >= $2 AND r.timestamp < $3",
			[]interface{}{"SEB", now, now.Add(24 * time.Hour)})

		assert.Contains(t, query, "AND a.market = $4 ORDER BY")
		assert.Equal(t, models.MarketWB, args[3])
	})
}
