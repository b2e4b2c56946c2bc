package comms

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"math"
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/vendai/vendai-jobs/internal/records"
)

//go:embed templates/*
var templateFS embed.FS

// ErrUnknownTemplate marks jobs whose template cannot be rendered.
var ErrUnknownTemplate = errors.New("comms: unknown template")

var printer = message.NewPrinter(language.English)

// FormatAmount groups thousands and keeps up to three fraction digits.
func FormatAmount(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

// FormatCurrency renders a shilling amount with two fraction digits.
func FormatCurrency(v float64) string {
	return "KES " + printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Renderer turns communication jobs into email messages.
type Renderer struct {
	text *template.Template
	html *htmltemplate.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	funcs := map[string]any{
		"currency": FormatCurrency,
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006")
		},
		"urgencyColor": func(days int) string {
			switch {
			case days >= 14:
				return "#dc2626"
			case days >= 7:
				return "#f59e0b"
			default:
				return "#f97316"
			}
		},
	}
	text, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("comms: parse text templates: %w", err)
	}
	html, err := htmltemplate.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("comms: parse html templates: %w", err)
	}
	return &Renderer{text: text, html: html}, nil
}

type overdueData struct {
	InvoiceNumber string
	Amount        float64
	DaysOverdue   int
	DueDate       time.Time
	SupplierName  string
	RetailerName  string
}

// Render builds the email for job.
func (r *Renderer) Render(job Job) (Message, error) {
	if r == nil {
		return Message{}, errors.New("comms: renderer not initialised")
	}
	msg := Message{To: job.Recipient}
	switch job.Template {
	case TemplateInvoiceOverdue:
		data := overdueFromPayload(job)
		if data.DaysOverdue >= 14 {
			msg.Subject = fmt.Sprintf("URGENT: Payment %d Days Overdue - Immediate Action Required", data.DaysOverdue)
		} else {
			msg.Subject = fmt.Sprintf("Payment Overdue: Invoice #%s - %d Days Late", data.InvoiceNumber, data.DaysOverdue)
		}
		var text, html bytes.Buffer
		if err := r.text.ExecuteTemplate(&text, TemplateInvoiceOverdue+".txt", data); err != nil {
			return Message{}, err
		}
		if err := r.html.ExecuteTemplate(&html, TemplateInvoiceOverdue+".html", data); err != nil {
			return Message{}, err
		}
		msg.Text, msg.HTML = text.String(), html.String()
	case "":
		if job.Message == "" {
			return Message{}, fmt.Errorf("%w: job %s has neither template nor message", ErrUnknownTemplate, job.ID)
		}
		msg.Subject = "VendAI notification"
		msg.Text = job.Message
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, job.Template)
	}
	return msg, nil
}

func overdueFromPayload(job Job) overdueData {
	p := job.Payload
	data := overdueData{
		InvoiceNumber: stringOf(p["invoiceNumber"], job.InvoiceID),
		Amount:        numberOf(p["amount"]),
		DaysOverdue:   int(math.Max(1, numberOf(p["daysOverdue"]))),
		SupplierName:  stringOf(p["supplierName"], ""),
		RetailerName:  stringOf(p["retailerName"], "Valued Customer"),
	}
	if due, ok := records.ParseTime(p["dueDate"]); ok {
		data.DueDate = due
	}
	return data
}

func stringOf(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func numberOf(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	f, _ := records.ParseNumber(v)
	return f
}
