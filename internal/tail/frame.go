package tail

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/neurobot/backend/internal/features"
)

// Frame is any message the live feed sends.
type Frame struct {
	Type     string            `json:"type"`
	Message  string            `json:"message,omitempty"`
	RecordID *int64            `json:"record_id,omitempty"`
	Features *features.Summary `json:"features,omitempty"`
	Mood     *string           `json:"mood,omitempty"`
}

func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("frame without type")
	}
	return f, nil
}

// Text renders f as one plain line.
func (f Frame) Text() string {
	switch f.Type {
	case "welcome", "echo":
		return fmt.Sprintf("%-13s %s", f.Type, f.Message)
	case "eeg_processed":
		var b strings.Builder
		fmt.Fprintf(&b, "%-13s record=%s mood=%q", f.Type, optInt(f.RecordID), optString(f.Mood))
		if s := f.Features; s != nil {
			fmt.Fprintf(&b, " n=%d mean=%.4g std=%.4g min=%.4g max=%.4g", s.Length, s.Mean, s.Std, s.Min, s.Max)
		}
		return b.String()
	default:
		return fmt.Sprintf("%-13s (unrecognized)", f.Type)
	}
}

func optInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
