// Package reminderscli implements the one-shot reminders command: run or
// preview the document and file reminder jobs for one date.
package reminderscli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/lfras/internal/flagx"
	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/jobs"
	"github.com/dmitrijs2005/lfras/internal/server/lock"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/services"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

// Options are the command's own flags. Server configuration flags are
// parsed separately by the config package.
type Options struct {
	DryRun bool
	Date   string
	Job    string
}

// ParseOptions reads -dry-run, -date and -job from args and ignores the
// rest.
func ParseOptions(args []string) (Options, error) {
	var o Options

	fs := flag.NewFlagSet("reminders", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&o.DryRun, "dry-run", false, "list due reminders without sending")
	fs.StringVar(&o.Date, "date", "", "run date YYYY-MM-DD (default: today in the reminder time zone)")
	fs.StringVar(&o.Job, "job", "", "documents or files (default: both)")

	if err := fs.Parse(flagx.FilterArgs(normalizeBool(args), []string{"-dry-run", "-date", "-job"})); err != nil {
		return o, fmt.Errorf("error parsing flags: %w", err)
	}
	if o.Job != "" && o.Job != services.JobDocuments && o.Job != services.JobFiles {
		return o, fmt.Errorf("%w %q", services.ErrUnknownJob, o.Job)
	}
	return o, nil
}

// normalizeBool spells a bare -dry-run as -dry-run=true so FilterArgs
// never takes the following argument as its value.
func normalizeBool(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "-dry-run" || a == "--dry-run" {
			a = "-dry-run=true"
		}
		out[i] = a
	}
	return out
}

// Service is the part of services.ReminderService the command uses.
type Service interface {
	jobs.Runner
	RunDate(t time.Time) time.Time
	Preview(ctx context.Context, actor models.Actor, runDate time.Time, job string) ([]services.PlannedReminder, error)
}

// Command runs one invocation.
type Command struct {
	svc    Service
	locker lock.Locker
	out    io.Writer
	table  bool
	logger logging.Logger
	now    func() time.Time
}

// NewCommand writes results to out, as an aligned table when table is set
// and as JSON lines otherwise.
func NewCommand(svc Service, locker lock.Locker, out io.Writer, table bool, l logging.Logger) *Command {
	return &Command{svc: svc, locker: locker, out: out, table: table, logger: l, now: time.Now}
}

// Execute runs or previews the selected jobs. A job skipped because another
// process holds its lock is reported, not treated as a failure.
func (c *Command) Execute(ctx context.Context, o Options) error {
	runDate := c.svc.RunDate(c.now())
	if o.Date != "" {
		d, err := timex.ParseDate(o.Date)
		if err != nil {
			return err
		}
		runDate = d
	}

	if o.DryRun {
		planned, err := c.svc.Preview(ctx, models.System, runDate, o.Job)
		if err != nil {
			return err
		}
		return c.printPlan(runDate, planned)
	}

	selected := []string{services.JobDocuments, services.JobFiles}
	if o.Job != "" {
		selected = []string{o.Job}
	}

	var summaries []services.RunSummary
	for _, job := range selected {
		sum, ran, err := jobs.RunLocked(ctx, c.locker, c.svc, job, runDate, c.logger)
		if err != nil {
			return fmt.Errorf("%s reminders: %w", job, err)
		}
		if !ran {
			c.logger.Warn(ctx, "job skipped, lock is held", "job", job, "run_date", runDate.Format(time.DateOnly))
			continue
		}
		summaries = append(summaries, sum)
	}
	return c.printSummaries(summaries)
}

func (c *Command) printPlan(runDate time.Time, planned []services.PlannedReminder) error {
	if !c.table {
		enc := json.NewEncoder(c.out)
		for _, p := range planned {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Reminders due on %s: %d\n", runDate.Format(time.DateOnly), len(planned))
	if len(planned) == 0 {
		return tw.Flush()
	}
	fmt.Fprintln(tw, "JOB\tID\tKIND\tDAYS\tEXPIRES\tRECIPIENTS\tSUBJECT")
	for _, p := range planned {
		kind := p.Kind
		if p.Step > 0 {
			kind = fmt.Sprintf("STEP %d", p.Step)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			p.Job, p.TargetID, kind, p.Days, p.ExpiresAt.Format(time.DateOnly), strings.Join(p.Recipients, ", "), p.Subject)
	}
	return tw.Flush()
}

func (c *Command) printSummaries(sums []services.RunSummary) error {
	if !c.table {
		enc := json.NewEncoder(c.out)
		for _, s := range sums {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tDATE\tDUE\tSENT\tFAILED\tERRORS")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", s.Job, s.RunDate.Format(time.DateOnly), s.Due, s.Sent, s.Failed, s.Errors)
	}
	return tw.Flush()
}
