package brand

import (
	"fmt"
	"time"

	// Embedded zone database so the provider zone resolves on hosts without tzdata.
	_ "time/tzdata"
)

// WindowLayout is the provider's date format. The provider matches these strings
// server-side, so the layout must be exact.
const WindowLayout = "2006-01-02 15:04:05"

// Window is the [Start, End) range requested from the provider, expressed in the
// brand's time zone.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ParseWindowTime parses a window bound in loc.
func ParseWindowTime(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(WindowLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid window time %q: %w", value, err)
	}
	return t, nil
}

// FormatWindowTime formats t in loc using the provider layout.
func FormatWindowTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(WindowLayout)
}

// Validate checks Start <= End when both are set.
// PRE: loc is the brand zone
// POST: Returns error if either bound is malformed or the range is inverted
func (w Window) Validate(loc *time.Location) error {
	if w.Start == "" && w.End == "" {
		return nil
	}
	start, err := ParseWindowTime(w.Start, loc)
	if err != nil {
		return err
	}
	end, err := ParseWindowTime(w.End, loc)
	if err != nil {
		return err
	}
	if start.After(end) {
		return fmt.Errorf("window start %s is after end %s", w.Start, w.End)
	}
	return nil
}

// Next returns the window that follows w: it starts at w.End and spans intervalMinutes.
// PRE: w.End is set, intervalMinutes > 0
// POST: next.Start == w.End, next.End == w.End + interval
func (w Window) Next(intervalMinutes int, loc *time.Location) (Window, error) {
	if intervalMinutes <= 0 {
		return Window{}, ErrInvalidInterval
	}
	end, err := ParseWindowTime(w.End, loc)
	if err != nil {
		return Window{}, err
	}
	return Window{
		Start: w.End,
		End:   FormatWindowTime(end.Add(time.Duration(intervalMinutes)*time.Minute), loc),
	}, nil
}

// In re-expresses w, read in from, as wall-clock times in to.
// Unset bounds stay unset.
func (w Window) In(from, to *time.Location) (Window, error) {
	convert := func(v string) (string, error) {
		if v == "" {
			return "", nil
		}
		t, err := ParseWindowTime(v, from)
		if err != nil {
			return "", err
		}
		return FormatWindowTime(t, to), nil
	}
	start, err := convert(w.Start)
	if err != nil {
		return Window{}, err
	}
	end, err := convert(w.End)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}
