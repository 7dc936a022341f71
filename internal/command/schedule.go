// internal/command/schedule.go
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayNone is the pseudo-day that clears the schedule: all-zero flags and a
// 00:00 time on the wire.
const DayNone = "Nun"

// dayOrder is the wire order of the weekday flags. The eighth slot belongs
// to DayNone and is always zero on the wire.
var dayOrder = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Schedule is a weekly start-time program for a trolley.
type Schedule struct {
	Days   []string // weekday names, or the single DayNone entry
	Hour   int
	Minute int
}

// IsNone reports whether the schedule is the clearing program.
func (s Schedule) IsNone() bool {
	for _, d := range s.Days {
		if d == DayNone {
			return true
		}
	}
	return false
}

func (s Schedule) hasDay(day string) bool {
	for _, d := range s.Days {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}

// WireMessage renders the schedule command the trolley firmware parses:
// "schedule_HH_MM_" followed by seven weekday flags (Mon first) and a
// trailing zero. The clearing program is all zeros.
func (s Schedule) WireMessage() string {
	if s.IsNone() {
		return "schedule_00_00_0_0_0_0_0_0_0_0"
	}

	flags := make([]string, 0, len(dayOrder)+1)
	for _, day := range dayOrder {
		if s.hasDay(day) {
			flags = append(flags, "1")
		} else {
			flags = append(flags, "0")
		}
	}
	flags = append(flags, "0")

	return fmt.Sprintf("schedule_%02d_%02d_%s", s.Hour, s.Minute, strings.Join(flags, "_"))
}

// ButtonName renders the stored-button variant of the command: hour and
// minute unpadded, eight flags including the DayNone slot.
func (s Schedule) ButtonName() string {
	if s.IsNone() {
		return "schedule_00_00_0_0_0_0_0_0_0_0"
	}

	flags := make([]string, 0, len(dayOrder)+1)
	for _, day := range dayOrder {
		if s.hasDay(day) {
			flags = append(flags, "1")
		} else {
			flags = append(flags, "0")
		}
	}
	flags = append(flags, "0")

	return fmt.Sprintf("schedule_%d_%d_%s", s.Hour, s.Minute, strings.Join(flags, "_"))
}

// ParseWire parses a wire-format schedule command back into a Schedule.
// All-zero flags decode as the clearing program.
func ParseWire(message string) (Schedule, error) {
	parts := strings.Split(message, "_")
	if len(parts) != 11 || parts[0] != "schedule" {
		return Schedule{}, fmt.Errorf("not a schedule command: %q", message)
	}

	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return Schedule{}, fmt.Errorf("bad schedule hour %q", parts[1])
	}
	minute, err := strconv.Atoi(parts[2])
	if err != nil || minute < 0 || minute > 59 {
		return Schedule{}, fmt.Errorf("bad schedule minute %q", parts[2])
	}

	var days []string
	for i, day := range dayOrder {
		switch parts[3+i] {
		case "1":
			days = append(days, day)
		case "0":
		default:
			return Schedule{}, fmt.Errorf("bad schedule flag %q", parts[3+i])
		}
	}

	if len(days) == 0 {
		return Schedule{Days: []string{DayNone}}, nil
	}
	return Schedule{Days: days, Hour: hour, Minute: minute}, nil
}

// TimeSyncMessage renders the clock-set command for the trolley firmware.
// Weekday follows the Sunday=0 convention the firmware expects.
func TimeSyncMessage(now time.Time) string {
	return fmt.Sprintf("set_time_%d_%d_%02d_%02d_%02d_%02d_%02d",
		now.Year(), int(now.Weekday()),
		int(now.Month()), now.Day(),
		now.Hour(), now.Minute(), now.Second())
}
