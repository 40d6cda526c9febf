package source

import (
	"strings"
	"time"

	"github.com/rory503/complaintwatch/internal/complaints"
)

// dateLayouts are the received-date formats the provider has been observed
// to emit.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseRow converts one upstream row into a Record. Column identifiers are
// matched case-insensitively and optional fields (narrative included) may be
// absent entirely. Rows without a usable identifier or received date are
// rejected.
func parseRow(row map[string]any) (complaints.Record, bool) {
	fields := make(map[string]string, len(row))

	for key, value := range row {
		s, ok := value.(string)
		if !ok {
			continue
		}

		fields[strings.ToLower(strings.TrimSpace(key))] = s
	}

	id := fields["complaint_id"]
	if id == "" {
		return complaints.Record{}, false
	}

	received, ok := parseDate(fields["date_received"])
	if !ok {
		return complaints.Record{}, false
	}

	return complaints.Record{
		ID:             id,
		Received:       received,
		Product:        fields["product"],
		Issue:          fields["issue"],
		SubIssue:       fields["sub_issue"],
		Company:        fields["company"],
		State:          fields["state"],
		Narrative:      fields["consumer_complaint_narrative"],
		TimelyResponse: fields["timely"],
	}, true
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return complaints.Day(t), true
		}
	}

	return time.Time{}, false
}
