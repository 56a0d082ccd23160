package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prayer names as they appear in the played ledger and in announcements.
const (
	PrayerImsak   = "Imsak"
	PrayerSubuh   = "Subuh"
	PrayerDzuhur  = "Dzuhur"
	PrayerAshar   = "Ashar"
	PrayerMaghrib = "Maghrib"
	PrayerIsya    = "Isya"
)

// DateLayout is the calendar date format used for schedule and ledger keys.
const DateLayout = "2006-01-02"

// DailySchedule holds one calendar date's prayer times as HH:MM strings.
type DailySchedule struct {
	Date     string
	Imsak    string
	Subuh    string
	Terbit   string
	Dhuha    string
	Dzuhur   string
	Ashar    string
	Maghrib  string
	Isya     string
	City     string
	Province string
}

// PrayerTime pairs a prayer name with its HH:MM time.
type PrayerTime struct {
	Name string
	Time string
}

// PrayerTimes returns the five announced prayers in chronological order.
func (d DailySchedule) PrayerTimes() []PrayerTime {
	return []PrayerTime{
		{Name: PrayerSubuh, Time: d.Subuh},
		{Name: PrayerDzuhur, Time: d.Dzuhur},
		{Name: PrayerAshar, Time: d.Ashar},
		{Name: PrayerMaghrib, Time: d.Maghrib},
		{Name: PrayerIsya, Time: d.Isya},
	}
}

// NextPrayer returns the first time from Imsak to Isya strictly after now
// (minute resolution). ok is false once Isya has passed.
func (d DailySchedule) NextPrayer(now time.Time) (PrayerTime, bool) {
	nowMinutes := now.Hour()*60 + now.Minute()
	all := append([]PrayerTime{{Name: PrayerImsak, Time: d.Imsak}}, d.PrayerTimes()...)
	for _, p := range all {
		secs, err := ClockSeconds(p.Time)
		if err != nil {
			continue
		}
		if secs/60 > nowMinutes {
			return p, true
		}
	}
	return PrayerTime{}, false
}

// Validate checks that every announced time parses.
func (d DailySchedule) Validate() error {
	for _, p := range d.PrayerTimes() {
		if _, err := ClockSeconds(p.Time); err != nil {
			return NewValidationError(strings.ToLower(p.Name), p.Time, err.Error())
		}
	}
	return nil
}

// ClockSeconds parses HH:MM into seconds since midnight.
func ClockSeconds(hhmm string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed time %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minute in %q", hhmm)
	}
	return h*3600 + m*60, nil
}

// SecondsSinceMidnight returns t's wall-clock offset within its day.
func SecondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// PlayedSet records which prayers already triggered on a date.
type PlayedSet map[string]bool
