// Package export writes the dashboard tables to an XLSX workbook.
package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/hyperke/client-health/internal/model"
)

const (
	SnapshotSheet  = "Client Health"
	UnmatchedSheet = "Unmatched"

	percentFormat = "0.00%"
	moneyFormat   = "#,##0.00"
)

// SnapshotHeader is the first row of the snapshot sheet.
var SnapshotHeader = []string{
	"Client Code", "Client Name", "Relationship Status", "Account Manager", "Inbox Manager", "SDR",
	"Weekly Target", "Period Start", "Period End",
	"Contacted", "New Leads Reached", "Replies", "Positives", "Bounces",
	"Reply Rate", "Positive Reply Rate", "Bounce %", "Volume Attainment", "PCPL Proxy",
	"Not Contacted", "RAG Status", "RAG Reason",
	"Deliverability Flag", "Volume Flag", "MMF Flag", "Data Missing Flag", "Data Stale Flag",
	"Last Reporting Date",
}

// UnmatchedHeader is the first row of the unmatched sheet.
var UnmatchedHeader = []string{"Type", "Client Code", "Normalized Name", "Last Seen", "Records"}

// Workbook builds a workbook holding the snapshot and, when entries is
// non-empty, the unmatched report.
func Workbook(snaps []model.HealthSnapshot, entries []model.UnmatchedEntry) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SnapshotSheet)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add snapshot sheet")
	}
	addStrings(sheet.AddRow(), SnapshotHeader)
	for _, s := range snaps {
		writeSnapshot(sheet.AddRow(), s)
	}

	if len(entries) == 0 {
		return f, nil
	}
	sheet, err = f.AddSheet(UnmatchedSheet)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add unmatched sheet")
	}
	addStrings(sheet.AddRow(), UnmatchedHeader)
	for _, e := range entries {
		row := sheet.AddRow()
		row.AddCell().SetString(string(e.Kind))
		addOptString(row, e.ClientCode)
		row.AddCell().SetString(e.LabelNorm)
		row.AddCell().SetString(e.LastSeen.Format(time.DateOnly))
		row.AddCell().SetInt64(e.RecordCount)
	}
	return f, nil
}

// WriteFile saves the workbook to path.
func WriteFile(path string, snaps []model.HealthSnapshot, entries []model.UnmatchedEntry) error {
	f, err := Workbook(snaps, entries)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

// Write streams the workbook to w.
func Write(w io.Writer, snaps []model.HealthSnapshot, entries []model.UnmatchedEntry) error {
	f, err := Workbook(snaps, entries)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "xlsx: write")
}

func writeSnapshot(row *xlsx.Row, s model.HealthSnapshot) {
	row.AddCell().SetString(s.ClientCode)
	addOptString(row, s.ClientName)
	addOptString(row, s.RelationshipStatus)
	addOptString(row, s.AccountManagerName)
	addOptString(row, s.InboxManagerName)
	addOptString(row, s.SDRName)
	addOptInt(row, s.WeeklyTargetInt)
	row.AddCell().SetString(s.Period.Start.Format(time.DateOnly))
	row.AddCell().SetString(s.Period.End.Format(time.DateOnly))

	for _, v := range []*int64{s.Contacted, s.NewLeadsReached, s.Replies, s.Positives, s.Bounces} {
		addOptInt(row, v)
	}
	for _, v := range []*float64{s.ReplyRate, s.PositiveReplyRate, s.BouncePct, s.VolumeAttainment} {
		addOptFloat(row, v, percentFormat)
	}
	addOptFloat(row, s.PCPLProxy, moneyFormat)
	addOptInt(row, s.NotContactedLeads)

	row.AddCell().SetString(string(s.RAGStatus))
	row.AddCell().SetString(s.RAGReason)
	for _, b := range []bool{s.Flags.Deliverability, s.Flags.Volume, s.Flags.MMF, s.Flags.DataMissing, s.Flags.DataStale} {
		row.AddCell().SetBool(b)
	}
	if s.MostRecentEndDate != nil {
		row.AddCell().SetString(s.MostRecentEndDate.Format(time.DateOnly))
	} else {
		row.AddCell()
	}
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// Nil values leave the cell empty.
func addOptString(row *xlsx.Row, v *string) {
	c := row.AddCell()
	if v != nil {
		c.SetString(*v)
	}
}

func addOptInt(row *xlsx.Row, v *int64) {
	c := row.AddCell()
	if v != nil {
		c.SetInt64(*v)
	}
}

func addOptFloat(row *xlsx.Row, v *float64, format string) {
	c := row.AddCell()
	if v != nil {
		c.SetFloatWithFormat(*v, format)
	}
}
