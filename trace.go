package stav

import (
	"encoding/json"
)

// Trace captures the commit history recorded on a transaction, one record
// per (container, commit) pair in the order writes were applied.
type Trace struct {
	TxID    string         `json:"tx_id"`
	Records []CommitRecord `json:"records"`
}

// CommitRecord details one container transition attempted by Commit. Applied
// is false when the equality policy suppressed the write.
type CommitRecord struct {
	Container string `json:"container"`
	Prev      any    `json:"prev,omitempty"`
	Next      any    `json:"next,omitempty"`
	Applied   bool   `json:"applied"`
}

// Trace returns a snapshot of the commit records accumulated so far.
// Repeated commits append further records.
func (tx *Tx) Trace() Trace {
	records := make([]CommitRecord, len(tx.records))
	copy(records, tx.records)
	return Trace{
		TxID:    tx.id.String(),
		Records: records,
	}
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated
// via ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
