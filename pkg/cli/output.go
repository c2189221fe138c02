package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

// window is a [Start, End) time range given on the command line.
type window struct {
	Start time.Time
	End   time.Time
}

// parseWindow accepts RFC 3339 timestamps or dates (2006-01-02). An empty end means now.
func parseWindow(start, end string, now time.Time) (window, error) {
	var w window
	var err error
	if w.Start, err = parseTime(start); err != nil {
		return w, fmt.Errorf("invalid --start: %w", err)
	}
	if end == "" {
		w.End = now.UTC()
	} else if w.End, err = parseTime(end); err != nil {
		return w, fmt.Errorf("invalid --end: %w", err)
	}
	if !w.Start.Before(w.End) {
		return w, fmt.Errorf("--start %s must be before --end %s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return w, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid fact id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeFact prints record as indented JSON or a one-line summary.
func writeFact(w io.Writer, format string, record *models.FactRecord) error {
	if format == "json" {
		return writeJSON(w, record)
	}
	_, err := fmt.Fprintln(w, factSummary(record))
	return err
}

func factSummary(r *models.FactRecord) string {
	s := fmt.Sprintf("%s type=%s", r.ID, r.TypeID)
	if r.Value != "" {
		s += fmt.Sprintf(" value=%q", r.Value)
	}
	if r.SourceObject != nil {
		s += " source=" + r.SourceObject.ID.String()
	}
	if r.DestinationObject != nil {
		s += " destination=" + r.DestinationObject.ID.String()
	}
	if r.Bidirectional {
		s += " bidirectional"
	}
	if r.InReferenceToID != nil {
		s += " in-reference-to=" + r.InReferenceToID.String()
	}
	s += " access=" + string(r.AccessMode)
	if r.IsSet(models.FactRecordFlagRetractedHint) {
		s += " retracted"
	}
	return s
}
