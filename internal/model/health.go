package model

import (
	"encoding/json"
	"time"
)

// ProbeResult is the outcome of one bounded reachability check.
type ProbeResult struct {
	Reachable  bool          `json:"ok"`
	StatusCode int           `json:"statusCode,omitempty"`
	Payload    any           `json:"version,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"-"`
}

// HealthReport is the composite status of the process and its collaborators.
// It serializes flat: {"backend":{"ok":true},"<name>":{...},"time":"..."}.
type HealthReport struct {
	Time          time.Time
	Self          bool
	Collaborators map[string]ProbeResult
}

func (r HealthReport) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Collaborators)+2)
	for name, res := range r.Collaborators {
		out[name] = res
	}
	out["backend"] = map[string]bool{"ok": r.Self}
	out["time"] = r.Time.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}
