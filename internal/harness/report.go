package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/mqtt"
)

// Status is the outcome of one case.
type Status string

// Case outcomes. StatusError means the case could not be evaluated
// (setup or teardown failed); StatusFailed means an expectation failed.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// Report summarises a suite run.
type Report struct {
	RunID      string        `json:"run_id"`
	Suite      string        `json:"suite"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Results    []CaseResult  `json:"results"`
}

func (r *Report) add(result CaseResult) {
	switch result.Status {
	case StatusPassed:
		r.Passed++
	case StatusSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Results = append(r.Results, result)
}

func (r *Report) finish(end time.Time) {
	r.Duration = end.Sub(r.StartedAt)
	r.DurationMS = r.Duration.Milliseconds()
}

// OK reports whether no case failed or errored.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Result returns the result for a case name.
func (r *Report) Result(name string) (CaseResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return CaseResult{}, false
}

var statusLabels = map[Status]string{
	StatusPassed:  "PASS",
	StatusFailed:  "FAIL",
	StatusError:   "ERROR",
	StatusSkipped: "SKIP",
}

// WriteText renders a human-readable report.
func (r *Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s (%s) started %s\n", r.RunID, r.Suite, r.StartedAt.Format(time.RFC3339)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, res := range r.Results {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", statusLabels[res.Status], res.Name, res.Duration.Round(time.Millisecond))
		if res.Error != "" && res.Status != StatusSkipped {
			fmt.Fprintf(tw, "  \t  %s\t\n", res.Error)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d passed, %d failed, %d skipped in %s\n",
		r.Passed, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
	return err
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Publisher is the subset of the MQTT client used to publish reports.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publish sends the JSON report to the run's report topic, retained.
func (r *Report) Publish(p Publisher, qos byte) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}
	topic := mqtt.Topics{}.Report(r.RunID)
	if err := p.Publish(topic, payload, qos, true); err != nil {
		return fmt.Errorf("publishing report to %s: %w", topic, err)
	}
	return nil
}
