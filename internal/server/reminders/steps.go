package reminders

import (
	"time"

	"github.com/dmitrijs2005/lfras/internal/timex"
)

// FileStep is one position in the file expiry cadence.
type FileStep struct {
	Number int    `json:"step"`
	Offset int    `json:"offset_days"`
	Label  string `json:"label"`
	Level  string `json:"level"`
}

// MaxFileStep is the last step of the file cadence.
const MaxFileStep = 10

// fileSteps is keyed by runDate minus expiry date, in days.
var fileSteps = map[int]FileStep{
	-28: {1, -28, "First Reminder: 4 weeks before expiry", "warning"},
	-21: {2, -21, "Second Reminder: 3 weeks before expiry", "warning"},
	-14: {3, -14, "Third Reminder: 2 weeks before expiry", "warning"},
	-7:  {4, -7, "Fourth Reminder: 1 week before expiry", "warning"},
	-1:  {5, -1, "Fifth Reminder: 24 hours before expiry", "warning"},
	0:   {6, 0, "Expiry Day", "error"},
	1:   {7, 1, "Post-Expiry: 24 hours", "error"},
	2:   {8, 2, "Post-Expiry: 48 hours", "error"},
	3:   {9, 3, "Post-Expiry: 72 hours", "error"},
	4:   {10, 4, "Final Reminder: 96 hours post-expiry", "error"},
}

// NextFileStep returns the step due on runDate for a file expiring at
// expiresAt, provided it is beyond lastStepSent. Steps never repeat and
// never move backwards.
func NextFileStep(expiresAt, runDate time.Time, lastStepSent int, loc *time.Location) (FileStep, bool) {
	offset := timex.DaysBetween(timex.LocalDate(expiresAt, loc), runDate)
	step, ok := fileSteps[offset]
	if !ok || step.Number <= lastStepSent {
		return FileStep{}, false
	}
	return step, true
}

// Subject renders the e-mail subject for a file step.
func (s FileStep) Subject(fileName string) string {
	return "[Lucid] " + s.Label + ": " + fileName
}
