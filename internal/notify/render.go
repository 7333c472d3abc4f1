package notify

import (
	"fmt"
	"html"
	"strings"
	"time"
)

type Message struct {
	To      []string
	Subject string
	HTML    string
}

const timeLayout = "2006-01-02 15:04 MST"

func esc(s string) string { return html.EscapeString(s) }

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

// Render は 1 イベントから送信するメールを組み立てる。宛先が無いものは含めない
func Render(ev Event, admins []string) []Message {
	var out []Message
	switch ev.Kind {
	case KindBorrowCreated:
		if ev.Borrower.Email != "" {
			out = append(out, Message{
				To:      []string{ev.Borrower.Email},
				Subject: "Package Borrowed Successfully",
				HTML: fmt.Sprintf(
					"<p>Hi %s,</p><p>You borrowed package <b>%s</b> (record #%d).</p>"+
						"<p>Verifier: %s<br>Borrowed at: %s<br>Due at: %s</p>",
					esc(ev.Borrower.Name), esc(ev.PackageCode), ev.RecordID,
					esc(ev.Verifier.Name), fmtTime(ev.BorrowedAt), fmtTime(ev.DueAt)),
			})
		}
		if ev.Verifier.Email != "" {
			out = append(out, Message{
				To:      []string{ev.Verifier.Email},
				Subject: "New Package to Verify",
				HTML: fmt.Sprintf(
					"<p>Hi %s,</p><p>%s borrowed package <b>%s</b> (record #%d) and chose you as verifier.</p>"+
						"<p>Due at: %s</p>",
					esc(ev.Verifier.Name), esc(ev.Borrower.Name), esc(ev.PackageCode), ev.RecordID,
					fmtTime(ev.DueAt)),
			})
		}
	case KindReturnDiscrepancy:
		// 管理者ごとに 1 通（他の管理者のアドレスを見せない）
		body := fmt.Sprintf(
			"<p>Package <b>%s</b> (record #%d) was returned with a sample count mismatch.</p>"+
				"<p>Borrower: %s<br>Verifier: %s<br>Expected samples: %d<br>Returned samples: %d<br>"+
				"Justification: %s</p>",
			esc(ev.PackageCode), ev.RecordID, esc(ev.Borrower.Name), esc(ev.Verifier.Name),
			ev.ExpectedSamples, ev.ReturnedSamples, esc(justificationText(ev.Justification)))
		for _, addr := range admins {
			if strings.TrimSpace(addr) == "" {
				continue
			}
			out = append(out, Message{
				To:      []string{addr},
				Subject: "Package Returned with Remarks",
				HTML:    body,
			})
		}
	case KindReturnReminder:
		if ev.Borrower.Email != "" {
			out = append(out, Message{
				To:      []string{ev.Borrower.Email},
				Subject: "Package Return Reminder",
				HTML: fmt.Sprintf(
					"<p>Hi %s,</p><p>Package <b>%s</b> (record #%d) is due at %s. Please return it.</p>",
					esc(ev.Borrower.Name), esc(ev.PackageCode), ev.RecordID, fmtTime(ev.DueAt)),
			})
		}
	}
	return out
}

// AlertText: Telegram 用のプレーンテキスト
func AlertText(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Package %s returned with remarks (record #%d)\n", ev.PackageCode, ev.RecordID)
	fmt.Fprintf(&b, "Borrower: %s\nVerifier: %s\n", ev.Borrower.Name, ev.Verifier.Name)
	fmt.Fprintf(&b, "Expected: %d / Returned: %d\n", ev.ExpectedSamples, ev.ReturnedSamples)
	fmt.Fprintf(&b, "Justification: %s", justificationText(ev.Justification))
	return b.String()
}

func justificationText(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
