package threadmgr

import (
	"encoding/json"
	"fmt"
	"time"
)

type datePropertyJSON struct {
	Date struct {
		Start string `json:"start"`
	} `json:"date"`
}

// parseDatePropertyJSON decodes a remote "date" property object's raw
// JSON into a time.Time, parsing the ISO-8601 "start" field.
func parseDatePropertyJSON(raw json.RawMessage) (time.Time, error) {
	var parsed datePropertyJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return time.Time{}, fmt.Errorf("decoding date property: %w", err)
	}
	if parsed.Date.Start == "" {
		return time.Time{}, fmt.Errorf("date property has no start value")
	}
	return time.Parse(time.RFC3339, parsed.Date.Start)
}
