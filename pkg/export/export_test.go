package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func weeklyGrid() Dataset {
	return Dataset{
		Title:   "CSE-4A",
		Headers: []string{"Time", "Monday", "Tuesday"},
		Rows: []map[string]string{
			{"Time": "09:00-10:00", "Monday": "CS201 Data Structures\nDr F1\nroom-101"},
			{"Time": "10:15-11:15", "Tuesday": "CS202L OS Lab"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"day", "time_slot"},
		Rows:    []map[string]string{{"day": "monday", "time_slot": "09:00-10:00"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "day,time_slot\nmonday,09:00-10:00\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(weeklyGrid())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(weeklyGrid())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Timetable"}, f.GetSheetList())
	title, err := f.GetCellValue("Timetable", "A1")
	require.NoError(t, err)
	assert.Equal(t, "CSE-4A", title)
	header, err := f.GetCellValue("Timetable", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Monday", header)
	slot, err := f.GetCellValue("Timetable", "C4")
	require.NoError(t, err)
	assert.Equal(t, "CS202L OS Lab", slot)
}

func TestICSExporterRender(t *testing.T) {
	exporter := NewICSExporter("")
	exporter.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	out, err := exporter.Render("CSE-4A", []CalendarEvent{{
		UID:      "entry-1@campus-timetable",
		Summary:  "CS201 Data Structures",
		Location: "room-101",
		Start:    start,
		End:      start.Add(time.Hour),
	}}, time.Time{})
	require.NoError(t, err)

	body := string(out)
	assert.True(t, strings.Contains(body, "BEGIN:VEVENT"))
	assert.True(t, strings.Contains(body, "RRULE:FREQ=WEEKLY"))
	assert.True(t, strings.Contains(body, "SUMMARY:CS201 Data Structures"))
	assert.True(t, strings.Contains(body, "UID:entry-1@campus-timetable"))

	_, err = exporter.Render("bad", []CalendarEvent{{UID: "x", Start: start, End: start}}, time.Time{})
	assert.Error(t, err)
}
