package output

import (
	"encoding/json"

	"github.com/modlens/modlens/internal/core"
)

// JSONFormatter renders records as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatRecords renders cached mod records as JSON.
func (f *JSONFormatter) FormatRecords(records []*core.ModRecord) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
