package export

import (
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/review"
)

var paymentLabels = map[string]string{
	entity.PaymentCash:     "現金",
	entity.PaymentCard:     "クレジットカード",
	entity.PaymentTransit:  "電子マネー",
	entity.PaymentTransfer: "銀行振込",
	entity.PaymentUnknown:  "不明",
}

var invoiceLabels = map[string]string{
	entity.InvoiceFlagYes:     "適格（インボイスあり）",
	entity.InvoiceFlagNo:      "非適格",
	entity.InvoiceFlagUnknown: "不明",
}

var taxLabels = map[string]string{
	"課税10%":    "課税（10%）",
	"課税8%（軽減）": "課税（8%軽減）",
	"非課税":      "非課税",
	"不課税":      "不課税",
	"免税":       "免税",
}

var reviewReasonLabels = map[string]string{
	review.ReasonDateMissing:               "日付不明",
	review.ReasonAmountMissing:             "金額不明",
	review.ReasonStoreMissing:              "店名不明",
	review.ReasonInvoiceUnknown:            "インボイス不明",
	review.ReasonLowConfidence:             "読み取り精度が低い",
	review.ReasonDebitAccountLowConfidence: "科目推定の精度が低い",
	review.ReasonInvalidInvoiceNumber:      "登録番号の形式が不正",
}

// label maps v through m, falling back to v itself
func label(m map[string]string, v string) string {
	if l, ok := m[v]; ok {
		return l
	}
	return v
}

// journalHeaders are the shared column titles of the journal sheet and the CSV
var journalHeaders = []string{
	"取引日", "借方科目", "借方金額", "税区分", "取引先", "摘要",
	"貸方科目", "貸方金額", "支払方法", "インボイス判定", "登録番号",
	"証憑ID", "要確認フラグ", "科目候補2", "信頼度", "メモ",
}

// journalRow is one receipt flattened to journal columns
type journalRow struct {
	Date         string
	DebitAccount string
	Amount       int64
	TaxCategory  string
	Partner      string
	Description  string
	Credit       string
	Payment      string
	Invoice      string
	InvoiceNo    string
	EvidenceID   string
	Review       string
	Candidate2   string
	Confidence   float64
	Memo         string
}

func toJournalRow(r *entity.Receipt, creditDefault string) journalRow {
	row := journalRow{
		Date:         r.FinalDate,
		DebitAccount: r.DebitAccount,
		Amount:       r.FinalTotalAmount,
		TaxCategory:  label(taxLabels, r.TaxCategory),
		Partner:      r.PartnerName,
		Description:  r.Description,
		Credit:       r.CreditAccount,
		Payment:      label(paymentLabels, r.PaymentMethod),
		Invoice:      label(invoiceLabels, r.InvoiceFlag),
		EvidenceID:   r.EvidenceID,
		Confidence:   r.OCRConfidence,
	}
	if row.Credit == "" {
		row.Credit = creditDefault
	}
	if r.InvoiceNumber != nil {
		row.InvoiceNo = *r.InvoiceNumber
	}
	if r.NeedsReview {
		row.Review = "要確認"
	}
	if r.DebitAccountCandidate2 != nil {
		row.Candidate2 = *r.DebitAccountCandidate2
	}
	if r.Memo != nil {
		row.Memo = *r.Memo
	}
	return row
}
