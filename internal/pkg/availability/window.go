package availability

import (
	"fmt"
	"time"

	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/config"
)

// Window is the daily span events must fit in, evaluated in Location.
type Window struct {
	OpenHour  int
	CloseHour int
	Location  *time.Location
}

func DefaultWindow() Window {
	return Window{OpenHour: 8, CloseHour: 20, Location: time.UTC}
}

func WindowFromConfig(cfg config.Config) Window {
	return Window{OpenHour: cfg.ScheduleOpenHour, CloseHour: cfg.ScheduleCloseHour, Location: cfg.Location()}
}

// Check requires end > start and both bounds on the same local day between
// the opening and closing hour. An end exactly at the closing hour fits.
func (w Window) Check(start, end time.Time) error {
	if !end.After(start) {
		return apperrors.Validation("end must be after start")
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	ls := start.In(loc)
	y, m, d := ls.Date()
	opening := time.Date(y, m, d, w.OpenHour, 0, 0, 0, loc)
	closing := time.Date(y, m, d, w.CloseHour, 0, 0, 0, loc)

	if ls.Before(opening) || !ls.Before(closing) {
		return apperrors.Validation(fmt.Sprintf("events must start between %02d:00 and %02d:00", w.OpenHour, w.CloseHour))
	}
	if end.After(closing) {
		return apperrors.Validation(fmt.Sprintf("events must end by %02d:00", w.CloseHour))
	}
	return nil
}
