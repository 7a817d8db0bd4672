package report

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sage-erp/pharmacy/internal/orders"
)

//go:embed templates/*.html
var templates embed.FS

// PDFClient exposes the subset of the report client used by renderers.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// BillRenderer turns an order bill into a PDF.
type BillRenderer struct {
	tpl    *template.Template
	client PDFClient
}

// NewBillRenderer parses the bill template and wires the PDF client.
func NewBillRenderer(client PDFClient) (*BillRenderer, error) {
	if client == nil {
		return nil, errors.New("bill renderer: pdf client required")
	}
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006")
		},
		"money": func(d decimal.Decimal) string {
			return d.StringFixed(2) + " €"
		},
		"lineTotal": func(l orders.BillLine) string {
			return l.PriceWithTax.Mul(decimal.NewFromInt(int64(l.Quantity))).StringFixed(2) + " €"
		},
	}
	tpl, err := template.New("bill.html").Funcs(funcMap).ParseFS(templates, "templates/bill.html")
	if err != nil {
		return nil, err
	}
	return &BillRenderer{tpl: tpl, client: client}, nil
}

// HTML executes the bill template.
func (r *BillRenderer) HTML(bill orders.Bill) (string, error) {
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, bill); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderBill renders bill to PDF bytes.
func (r *BillRenderer) RenderBill(ctx context.Context, bill orders.Bill) ([]byte, error) {
	if r == nil || r.tpl == nil || r.client == nil {
		return nil, errors.New("bill renderer not initialised")
	}
	html, err := r.HTML(bill)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}
