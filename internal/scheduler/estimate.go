package scheduler

import (
	"fmt"
	"log"
	"strings"
	"time"

	"beegreen/internal/models"

	"github.com/robfig/cron/v3"
)

// NextRunLayout matches the datetime format devices report on next_schedule_due
const NextRunLayout = "2006-01-02 15:04:05"

// SlotCronSpec converts a schedule slot to a standard cron expression.
// Empty, disabled and dayless slots never run and yield false.
func SlotCronSpec(slot models.ScheduleSlot) (string, bool) {
	if slot.IsEmpty() || !slot.Enabled || slot.Dow&models.EveryDay == 0 {
		return "", false
	}
	// Cron format: minute hour day month weekday
	days := "*"
	if slot.Dow&models.EveryDay != models.EveryDay {
		var list []string
		for d := time.Sunday; d <= time.Saturday; d++ {
			if slot.RunsOn(d) {
				list = append(list, fmt.Sprint(int(d)))
			}
		}
		days = strings.Join(list, ",")
	}
	return fmt.Sprintf("%d %d * * %s", slot.Min, slot.Hour, days), true
}

// EstimateNextRun computes the next start time of a table from the cached
// slots, used when the device has not reported its own value
func EstimateNextRun(slots []models.ScheduleSlot, now time.Time) (time.Time, bool) {
	var best time.Time
	for _, slot := range slots {
		spec, ok := SlotCronSpec(slot)
		if !ok {
			continue
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			log.Printf("SCHEDULER: Bad cron spec '%s' for slot %d: %v", spec, slot.Index, err)
			continue
		}
		next := sched.Next(now)
		if best.IsZero() || next.Before(best) {
			best = next
		}
	}
	return best, !best.IsZero()
}
