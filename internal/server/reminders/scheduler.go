package reminders

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

type Kind string

const (
	KindPre  Kind = "PRE"
	KindOn   Kind = "ON"
	KindPost Kind = "POST"
)

// Trigger is a reminder due on a run date. Days is the signed number of
// days until expiry: positive for PRE, zero for ON, negative for POST.
type Trigger struct {
	Kind Kind `json:"kind"`
	Days int  `json:"days"`
}

// Subject renders the e-mail subject for a document titled title.
func (t Trigger) Subject(title string) string {
	switch t.Kind {
	case KindOn:
		return fmt.Sprintf("[Lucid] Document expires today: %s", title)
	case KindPost:
		return fmt.Sprintf("[Lucid] Document expired %d day(s) ago: %s", -t.Days, title)
	default:
		return fmt.Sprintf("[Lucid] Document expiring in %d day(s): %s", t.Days, title)
	}
}

// WillTriggerOn reports which reminder, if any, a document is due on
// runDate. runDate is a calendar date in cfg.Location (see timex.LocalDate).
// At most one trigger is returned, and none once the document has already
// been notified on runDate.
func WillTriggerOn(doc models.Document, runDate time.Time, cfg Config) *Trigger {
	if !doc.IsActive || doc.ExpiresAt == nil {
		return nil
	}

	var lastDate *time.Time
	if doc.LastExpiryNotifiedAt != nil {
		d := timex.LocalDate(*doc.LastExpiryNotifiedAt, cfg.Location)
		if d.Equal(runDate) {
			return nil
		}
		lastDate = &d
	}

	days := timex.DaysBetween(runDate, timex.LocalDate(*doc.ExpiresAt, cfg.Location))

	switch {
	case days == 0:
		return &Trigger{Kind: KindOn}
	case days > 0:
		if cfg.hasOffset(days) {
			return &Trigger{Kind: KindPre, Days: days}
		}
		return nil
	default:
		if lastDate == nil || timex.DaysBetween(*lastDate, runDate) >= cfg.PostExpiryIntervalDays {
			return &Trigger{Kind: KindPost, Days: days}
		}
		return nil
	}
}
