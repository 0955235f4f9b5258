package export

import (
	"bytes"
	"testing"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteBookings(t *testing.T) {
	start, _ := models.ParseTimeOfDay("10:00")
	day := models.NewDate(2024, 5, 12)
	rows := []Row{
		{
			Booking: models.Booking{
				ID: 1, Date: day, StartTime: start, EndTime: start.Add(60), DurationMinutes: 60,
				CourtID: "court1", CourtName: "Court 1", PaymentMethod: "cash",
				BasePrice: models.AmountFromUnits(25), TotalPrice: models.AmountFromFloat(33),
			},
			Participants: []models.Participant{
				{DisplayName: "Edwin", Surname: "Jacob", Role: models.RoleOrganizer},
				{DisplayName: "Thomas", Surname: "Cook", Role: models.RoleGuest},
			},
		},
		{
			Booking: models.Booking{
				ID: 2, Date: day, StartTime: start.Add(120), EndTime: start.Add(180), DurationMinutes: 60,
				CourtID: "court1", CourtName: "Court 1",
			},
		},
	}
	courts := []models.Court{{ID: "court1", Name: "Court 1"}, {ID: "court3", Name: "Court 3"}}

	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, "Bookings", day, day.AddDays(2), courts, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Bookings", "Schedule"}, f.GetSheetList())

	v, _ := f.GetCellValue("Bookings", "G2")
	assert.Equal(t, "Edwin Jacob", v)
	v, _ = f.GetCellValue("Bookings", "I2")
	assert.Equal(t, "1", v)
	v, _ = f.GetCellValue("Bookings", "L2")
	assert.Equal(t, "33.00", v)

	v, _ = f.GetCellValue("Schedule", "A1")
	assert.Equal(t, "Period: 2024-05-12 - 2024-05-14", v)
	v, _ = f.GetCellValue("Schedule", "B2")
	assert.Equal(t, "12.05", v)
	v, _ = f.GetCellValue("Schedule", "B3")
	assert.Equal(t, "10:00-11:00 #1\n12:00-13:00 #2", v)
	v, _ = f.GetCellValue("Schedule", "B4")
	assert.Empty(t, v)
}

func TestWriteBookings_Empty(t *testing.T) {
	var buf bytes.Buffer
	day := models.NewDate(2024, 5, 12)
	require.NoError(t, WriteBookings(&buf, "", day, day, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
