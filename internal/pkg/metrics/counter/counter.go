package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/SupplierHub/app/models"
)

const webhookOutcomesKey = "billing:webhooks:counters"

// fieldSep joins day and outcome inside a hash field.
const fieldSep = "|"

// Counter buffers webhook outcome counts in Redis and periodically flushes
// them into the webhook_daily_stats table.
type Counter struct {
	rdb *redis.Client
	db  *gorm.DB
	key string
	now func() time.Time
}

func New(rdb *redis.Client, db *gorm.DB) *Counter {
	return &Counter{rdb: rdb, db: db, key: webhookOutcomesKey, now: time.Now}
}

// AddWebhookOutcome increments the pending counter for an outcome today.
func (c *Counter) AddWebhookOutcome(ctx context.Context, outcome string) error {
	field := c.now().UTC().Format(time.DateOnly) + fieldSep + outcome
	return c.rdb.HIncrBy(ctx, c.key, field, 1).Err()
}

// Pending returns the counts not yet flushed, keyed by day then outcome.
func (c *Counter) Pending(ctx context.Context) (map[string]map[string]int64, error) {
	data, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int64)
	for _, s := range parseFields(data) {
		if out[s.Day] == nil {
			out[s.Day] = make(map[string]int64)
		}
		out[s.Day][s.Outcome] += s.Hits
	}
	return out, nil
}

// Flush drains the Redis hash atomically and adds the counts to the table.
// Uses RENAME to a temporary key so in-flight increments are never lost. When
// the table write fails the drained counts are added back for the next flush.
func (c *Counter) Flush(ctx context.Context) error {
	tmpKey := fmt.Sprintf("%s:tmp:%d", c.key, c.now().UnixNano())
	if err := c.rdb.Rename(ctx, c.key, tmpKey).Err(); err != nil {
		// Nothing counted since the last flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return fmt.Errorf("read %s: %w", tmpKey, err)
	}
	if err := c.persist(ctx, data); err != nil {
		if restoreErr := c.restore(ctx, tmpKey, data); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}
	return c.rdb.Del(ctx, tmpKey).Err()
}

func (c *Counter) persist(ctx context.Context, data map[string]string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range parseFields(data) {
			row := s
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "day"}, {Name: "outcome"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"hits": gorm.Expr("hits + ?", row.Hits)}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// restore adds drained counts back onto the live hash and drops the temp key.
func (c *Counter) restore(ctx context.Context, tmpKey string, data map[string]string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, v := range data {
			inc, err := strconv.ParseInt(v, 10, 64)
			if err != nil || inc == 0 {
				continue
			}
			pipe.HIncrBy(ctx, c.key, field, inc)
		}
		pipe.Del(ctx, tmpKey)
		return nil
	})
	return err
}

// Daily returns flushed counts for the given number of most recent days.
func (c *Counter) Daily(ctx context.Context, days int) ([]models.WebhookDailyStat, error) {
	since := c.now().UTC().AddDate(0, 0, -days+1).Format(time.DateOnly)
	var stats []models.WebhookDailyStat
	err := c.db.WithContext(ctx).
		Where("day >= ?", since).
		Order("day ASC, outcome ASC").
		Find(&stats).Error
	return stats, err
}

func parseFields(data map[string]string) []models.WebhookDailyStat {
	stats := make([]models.WebhookDailyStat, 0, len(data))
	for field, v := range data {
		day, outcome, ok := strings.Cut(field, fieldSep)
		if !ok || day == "" || outcome == "" {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		stats = append(stats, models.WebhookDailyStat{Day: day, Outcome: outcome, Hits: inc})
	}
	// Stable order for batched writes
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Day != stats[j].Day {
			return stats[i].Day < stats[j].Day
		}
		return stats[i].Outcome < stats[j].Outcome
	})
	return stats
}
