package journal

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{"entry_id", "created_at", "role", "content"}

// ExportEntry is an entry as listed in the JSON export
type ExportEntry struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportRow is one message of the export
type ExportRow struct {
	EntryID   uuid.UUID `json:"entry_id"`
	CreatedAt time.Time `json:"created_at"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

// ExportDocument is the JSON export body
type ExportDocument struct {
	Entries  []ExportEntry `json:"entries"`
	Messages []ExportRow   `json:"messages"`
}

// ExportFile is a rendered export ready to download
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export renders every entry of the user with its messages. Entries are newest
// first and messages keep conversation order within an entry.
func (s *Service) Export(ctx context.Context, userID uuid.UUID, format string, now time.Time) (*ExportFile, error) {
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrInvalidInput, format)
	}

	entries, err := s.entries.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc := ExportDocument{
		Entries:  make([]ExportEntry, 0, len(entries)),
		Messages: []ExportRow{},
	}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, ExportEntry{ID: e.ID, CreatedAt: e.CreatedAt})

		msgs, err := s.messages.ListByEntry(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			doc.Messages = append(doc.Messages, ExportRow{
				EntryID:   e.ID,
				CreatedAt: m.CreatedAt,
				Role:      m.Role,
				Content:   m.Content,
			})
		}
	}

	filename := fmt.Sprintf("dziennik_%s.%s", now.Format("2006-01-02"), format)

	if format == FormatJSON {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal export: %w", err)
		}
		return &ExportFile{Filename: filename, ContentType: "application/json", Data: data}, nil
	}

	data, err := renderCSV(doc.Messages)
	if err != nil {
		return nil, err
	}
	return &ExportFile{Filename: filename, ContentType: "text/csv; charset=utf-8", Data: data}, nil
}

func renderCSV(rows []ExportRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.EntryID.String(), r.CreatedAt.UTC().Format(time.RFC3339Nano), r.Role, r.Content}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
