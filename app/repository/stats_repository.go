package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/medisched/medisched/app/models"
)

type statsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) Overview(ctx context.Context) (*Overview, error) {
	db := r.db.WithContext(ctx)
	o := &Overview{}
	counts := []struct {
		model interface{}
		where string
		arg   interface{}
		dest  *int64
	}{
		{&models.Organization{}, "", nil, &o.Organizations},
		{&models.Organization{}, "enabled = ?", true, &o.EnabledOrganizations},
		{&models.User{}, "", nil, &o.Users},
		{&models.Member{}, "", nil, &o.Members},
		{&models.Department{}, "", nil, &o.Departments},
		{&models.Provider{}, "", nil, &o.Providers},
		{&models.Event{}, "", nil, &o.Events},
		{&models.Event{}, "is_booked = ?", true, &o.BookedEvents},
		{&models.Booking{}, "", nil, &o.Bookings},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.arg)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return o, nil
}

// DailyBookings counts bookings per UTC day in [start, end). Days without
// bookings are omitted. Bucketing happens here because the date functions
// differ between the supported drivers.
func (r *statsRepository) DailyBookings(ctx context.Context, start, end time.Time) ([]models.DailyStats, error) {
	var created []time.Time
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at").
		Pluck("created_at", &created).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get daily booking stats: %w", err)
	}

	dailyStats := []models.DailyStats{}
	for _, t := range created {
		day := t.UTC().Format("2006-01-02")
		if n := len(dailyStats); n > 0 && dailyStats[n-1].Date == day {
			dailyStats[n-1].Count++
			continue
		}
		dailyStats = append(dailyStats, models.DailyStats{Date: day, Count: 1})
	}
	return dailyStats, nil
}
