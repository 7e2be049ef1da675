package types

import (
	"time"
)

// RunMeta identifies a simulation run. UID is derived from the run's
// content (parameters + components), so re-running the same setup
// yields the same id.
type RunMeta struct {
	UID      string            `json:"uid"`
	Factor   string            `json:"factor"`
	Market   string            `json:"market"`
	Asset    string            `json:"asset"`
	Hedge    string            `json:"hedge,omitempty"`
	Base     string            `json:"base"`
	Pipeline string            `json:"pipeline"`
	Model    string            `json:"model"`
	Params   map[string]string `json:"params"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end"`
	Updated  time.Time         `json:"updated"`
}
