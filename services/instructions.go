package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/shopspring/decimal"
)

// renderPaymentText 振込案内と口座情報の文面。金額や配送方法が変わるたびに作り直す
func renderPaymentText(company config.CompanyAccount, orderNumber string, amountDue decimal.Decimal, method models.PaymentMethod, deadline time.Time) (instructions, accountInfo string) {
	if method != models.PaymentBankTransfer {
		return "", ""
	}

	instructions = fmt.Sprintf(
		"請於 %s 前將 NT$%s 匯入下列帳戶，並於匯款備註填寫訂單編號 %s。匯款完成後請上傳匯款證明，逾期未付款訂單將自動取消。",
		deadline.Format("2006/01/02 15:04"), formatAmount(amountDue), orderNumber,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "銀行：%s (%s)\n", company.BankName, company.BankCode)
	fmt.Fprintf(&b, "分行：%s\n", company.BranchName)
	fmt.Fprintf(&b, "戶名：%s\n", company.AccountName)
	fmt.Fprintf(&b, "帳號：%s\n", company.AccountNumber)
	fmt.Fprintf(&b, "備註：%s", orderNumber)
	return instructions, b.String()
}

func formatAmount(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}
