package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"

	sheetJournal = "仕訳データ"
	sheetReview  = "要確認リスト"
	sheetSummary = "サマリ"
)

var jst = time.FixedZone("JST", 9*60*60)

// Renderer implements port.ExportRenderer for xlsx and csv
type Renderer struct {
	logger *zap.Logger
}

// NewRenderer creates a new export renderer
func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render produces the file bytes and content type for format
func (r *Renderer) Render(format string, doc port.ExportDocument) ([]byte, string, error) {
	if doc.CreditAccountDefault == "" {
		doc.CreditAccountDefault = entity.DefaultCreditAccount
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now()
	}

	switch format {
	case entity.ExportFormatXLSX:
		content, err := r.renderXLSX(doc)
		return content, ContentTypeXLSX, err
	case entity.ExportFormatCSV:
		content, err := renderCSV(doc)
		return content, ContentTypeCSV, err
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// renderCSV writes a UTF-8 BOM, CRLF line endings and RFC 4180 quoting
func renderCSV(doc port.ExportDocument) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(journalHeaders); err != nil {
		return nil, fmt.Errorf("csv write header: %w", err)
	}
	for _, rec := range doc.Receipts {
		row := toJournalRow(rec, doc.CreditAccountDefault)
		amount := strconv.FormatInt(row.Amount, 10)
		if err := w.Write([]string{
			row.Date,
			row.DebitAccount,
			amount,
			row.TaxCategory,
			row.Partner,
			row.Description,
			row.Credit,
			amount,
			row.Payment,
			row.Invoice,
			row.InvoiceNo,
			row.EvidenceID,
			row.Review,
			row.Candidate2,
			strconv.FormatFloat(row.Confidence, 'f', 2, 64),
			row.Memo,
		}); err != nil {
			return nil, fmt.Errorf("csv write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderXLSX(doc port.ExportDocument) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetJournal); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetReview, sheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := r.writeJournal(f, styles, doc); err != nil {
		return nil, err
	}
	if err := r.writeReview(f, styles, doc); err != nil {
		return nil, err
	}
	if err := r.writeSummary(f, doc); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	r.logger.Debug("Rendered xlsx export",
		zap.Int("rows", len(doc.Receipts)),
		zap.Int("bytes", buf.Len()))

	return buf.Bytes(), nil
}

type sheetStyles struct {
	header       int
	reviewHeader int
	date         int
	amount       int
	confidence   int
	flagged      int
}

func newStyles(f *excelize.File) (*sheetStyles, error) {
	dateFmt := "yyyy/mm/dd"
	amountFmt := "#,##0"
	confidenceFmt := "0.00"

	s := &sheetStyles{}
	defs := map[*int]*excelize.Style{
		&s.header: {
			Font:      &excelize.Font{Bold: true, Size: 11},
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9D9D9"}},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		},
		&s.reviewHeader: {
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFCCCC"}},
		},
		&s.date:       {CustomNumFmt: &dateFmt},
		&s.amount:     {CustomNumFmt: &amountFmt},
		&s.confidence: {CustomNumFmt: &confidenceFmt},
		&s.flagged:    {Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFD966"}}},
	}

	for dst, style := range defs {
		id, err := f.NewStyle(style)
		if err != nil {
			return nil, fmt.Errorf("create style: %w", err)
		}
		*dst = id
	}
	return s, nil
}

var journalWidths = []float64{14, 16, 14, 14, 20, 30, 16, 14, 16, 20, 18, 24, 10, 16, 10, 20}

func (r *Renderer) writeJournal(f *excelize.File, styles *sheetStyles, doc port.ExportDocument) error {
	sheet := sheetJournal

	headers := append([]string(nil), journalHeaders...)
	headers[9] = "インボイス"
	headers[12] = "⚠要確認"
	if err := writeHeader(f, sheet, headers, styles.header); err != nil {
		return err
	}
	for i, w := range journalWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	for i, rec := range doc.Receipts {
		rowNum := i + 2
		row := toJournalRow(rec, doc.CreditAccountDefault)

		var date interface{} = row.Date
		if row.Date != entity.UnknownDate {
			if t, err := time.Parse("2006-01-02", row.Date); err == nil {
				date = t
			}
		}

		values := []interface{}{
			date, row.DebitAccount, row.Amount, row.TaxCategory, row.Partner, row.Description,
			row.Credit, row.Amount, row.Payment, row.Invoice, row.InvoiceNo,
			row.EvidenceID, row.Review, row.Candidate2, row.Confidence, row.Memo,
		}
		if err := writeRow(f, sheet, rowNum, values); err != nil {
			return err
		}

		for _, cs := range []struct {
			col   int
			style int
		}{
			{1, styles.date},
			{3, styles.amount},
			{8, styles.amount},
			{15, styles.confidence},
		} {
			if err := styleCell(f, sheet, cs.col, rowNum, cs.style); err != nil {
				return err
			}
		}
		if rec.NeedsReview {
			if err := styleCell(f, sheet, 13, rowNum, styles.flagged); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *Renderer) writeReview(f *excelize.File, styles *sheetStyles, doc port.ExportDocument) error {
	sheet := sheetReview

	if err := writeHeader(f, sheet, []string{"証憑ID", "店名", "取引日", "金額", "要確認理由"}, styles.reviewHeader); err != nil {
		return err
	}
	for i, w := range []float64{24, 20, 14, 12, 40} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	rowNum := 2
	for _, rec := range doc.Receipts {
		if !rec.NeedsReview {
			continue
		}
		reasons := make([]string, 0, len(rec.ReviewReasons))
		for _, code := range rec.ReviewReasons {
			reasons = append(reasons, label(reviewReasonLabels, code))
		}
		values := []interface{}{rec.EvidenceID, rec.FinalStoreName, rec.FinalDate, rec.FinalTotalAmount, strings.Join(reasons, "、")}
		if err := writeRow(f, sheet, rowNum, values); err != nil {
			return err
		}
		rowNum++
	}

	return nil
}

type accountTotal struct {
	account string
	count   int
	amount  int64
}

func (r *Renderer) writeSummary(f *excelize.File, doc port.ExportDocument) error {
	sheet := sheetSummary

	var total int64
	var flagged int
	var byAccount []*accountTotal
	index := make(map[string]*accountTotal)
	for _, rec := range doc.Receipts {
		total += rec.FinalTotalAmount
		if rec.NeedsReview {
			flagged++
		}
		at, ok := index[rec.DebitAccount]
		if !ok {
			at = &accountTotal{account: rec.DebitAccount}
			index[rec.DebitAccount] = at
			byAccount = append(byAccount, at)
		}
		at.count++
		at.amount += rec.FinalTotalAmount
	}

	rows := [][]interface{}{
		{"出力日時", doc.GeneratedAt.In(jst).Format("2006/1/2 15:04:05")},
		{"総件数", len(doc.Receipts)},
		{"要確認件数", flagged},
		{"合計金額", total},
		{},
		{"科目", "件数", "合計金額"},
	}
	for _, at := range byAccount {
		rows = append(rows, []interface{}{at.account, at.count, at.amount})
	}

	for i, values := range rows {
		if err := writeRow(f, sheet, i+1, values); err != nil {
			return err
		}
	}

	for col, w := range map[string]float64{"A": 20, "B": 10, "C": 14} {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return err
	}

	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func styleCell(f *excelize.File, sheet string, col, row, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, cell, style)
}
