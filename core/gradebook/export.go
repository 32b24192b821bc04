package gradebook

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/scoring"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// WriteCSV writes the sheet in the mark sheet export format. Every field is quoted.
func WriteCSV(w io.Writer, sheet Sheet) error {
	bw := bufio.NewWriter(w)
	writeRecord := func(fields ...string) {
		for i, f := range fields {
			if i > 0 {
				_ = bw.WriteByte(',')
			}
			_, _ = bw.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`)
		}
		_, _ = bw.WriteString("\n")
	}

	writeRecord(
		"Student Name",
		"Raw Test Score",
		fmt.Sprintf("Final Test Contribution (out of %s)", scoring.FormatNumber(sheet.Config.TestContribution)),
	)
	for _, row := range sheet.Rows {
		writeRecord(row.StudentName, scoring.FormatNumber(row.RawScore), fmt.Sprintf("%.2f", row.FinalContribution))
	}
	return bw.Flush()
}

// WriteTable writes the print view of the sheet.
func WriteTable(w io.Writer, sheet Sheet) {
	_, _ = fmt.Fprintf(w, "%s - %s - %s\n", sheet.ClassName, sheet.SubjectName, sheet.TermName)
	_, _ = fmt.Fprintf(w, "Test marked over %s, added marks up to %s, contribution %s\n\n",
		scoring.FormatNumber(sheet.Config.TestMarkedOver),
		scoring.FormatNumber(sheet.Config.MaxAddedMark),
		scoring.FormatNumber(sheet.Config.TestContribution),
	)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Student Name", "Raw", "Added", "Total", "Final"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, row := range sheet.Rows {
		table.Append([]string{
			fmt.Sprint(i + 1),
			row.StudentName,
			scoring.FormatNumber(row.RawScore),
			scoring.FormatNumber(row.AddedMark),
			scoring.FormatNumber(row.AdjustedScore),
			row.Formatted,
		})
	}
	table.Render()
}

// ExportFilename names an export of the sheet made on date: <class>_<subject>_<term>_<YYYY-MM-DD>.<ext>
func ExportFilename(sheet Sheet, ext string, date time.Time) string {
	parts := []string{sheet.ClassName, sheet.SubjectName, sheet.TermName}
	for i, p := range parts {
		parts[i] = unsafeFilenameChars.ReplaceAllString(p, "_")
	}
	return fmt.Sprintf("%s_%s.%s", strings.Join(parts, "_"), date.Format("2006-01-02"), ext)
}

// MailSheet sends the CSV export of the mark sheet of t as an attachment.
func (svc *service) MailSheet(ctx context.Context, t Triple, to ...mail.Address) error {
	if len(to) == 0 {
		return core.NewValidationError(ErrNoRecipients, core.FieldError{Field: "to", Error: ErrNoRecipients.Error()})
	}
	sheet, err := svc.MarkSheet(ctx, t)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = WriteCSV(&buf, sheet); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	msg := &core.EmailMessage{
		To:       to,
		Subject:  fmt.Sprintf("Mark sheet: %s, %s, %s", sheet.ClassName, sheet.SubjectName, sheet.TermName),
		Category: "mark-sheet",
		Body: fmt.Sprintf("Please find attached the mark sheet of %s for %s (%s): %d students.",
			sheet.ClassName, sheet.SubjectName, sheet.TermName, len(sheet.Rows)),
	}
	if err = msg.Attach(&buf, ExportFilename(sheet, "csv", time.Now()), "text/csv"); err != nil {
		return errors.Wrap(err, "attaching csv")
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}

func sortRowsByName(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return nameKey(rows[i].StudentName) < nameKey(rows[j].StudentName)
	})
}
