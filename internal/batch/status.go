package batch

import "encoding/json"

// Status is the execution state of one target in a run.
type Status int

const (
	Pending Status = iota
	Running
	Succeeded
	Failed
	Terminated
)

var statusNames = map[Status]string{
	Pending:    "pending",
	Running:    "running",
	Succeeded:  "succeeded",
	Failed:     "failed",
	Terminated: "terminated",
}

var statusFromName = map[string]Status{
	"pending":    Pending,
	"running":    Running,
	"succeeded":  Succeeded,
	"failed":     Failed,
	"terminated": Terminated,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == Succeeded || s == Failed || s == Terminated
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}
