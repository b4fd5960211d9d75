package baseline

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteRecordsCSV serialises baseline records to CSV for external review.
func WriteRecordsCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"ID", "Nama", "NIK", "Desa", "Anggota Keluarga", "Pendapatan Bulanan", "Status", "Dibuat", "Diperbarui"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.ID.String(),
			rec.BeneficiaryName,
			rec.NIK,
			rec.Village,
			strconv.Itoa(rec.HouseholdSize),
			strconv.FormatInt(rec.MonthlyIncome, 10),
			string(rec.Status),
			rec.CreatedAt.Format("2006-01-02"),
			rec.UpdatedAt.Format("2006-01-02"),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
