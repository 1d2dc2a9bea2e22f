package invoices

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Renderer turns an order and its invoice metadata into a PDF document.
type Renderer interface {
	RenderInvoice(order models.Order, invoice models.Invoice) ([]byte, error)
}

// PDFRenderer renders A4 invoices with fpdf.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) RenderInvoice(order models.Order, invoice models.Invoice) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+invoice.InvoiceNumber, true)
	pdf.SetCreationDate(invoice.IssuedAt)
	pdf.SetModificationDate(invoice.IssuedAt)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "L", false, 0, "")
	if invoice.Status == enums.InvoiceStatusVoided {
		pdf.SetTextColor(200, 0, 0)
		pdf.CellFormat(0, 8, "VOID", "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Number: "+invoice.InvoiceNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Issued: "+invoice.IssuedAt.UTC().Format("2006-01-02"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Order: "+order.ID.String(), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	y := pdf.GetY()
	writeParty(pdf, "Seller", invoice.DataSnapshot.Seller, 10, y)
	writeParty(pdf, "Bill to", invoice.DataSnapshot.Buyer, 110, y)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 7, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, "Unit", "B", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range order.Items {
		pdf.CellFormat(90, 6, fmt.Sprintf("%s (%s)", item.Name, item.SKU), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, formatMoney(item.UnitPriceCents, item.Currency), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, formatMoney(item.LineTotalCents(), item.Currency), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(150, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, formatMoney(order.TotalCents, order.Currency), "T", 1, "R", false, 0, "")

	if notes := strings.TrimSpace(invoice.DataSnapshot.Notes); notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, notes, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeParty(pdf *fpdf.Fpdf, title string, party types.Party, x, y float64) {
	pdf.SetXY(x, y)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 6, title, "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)

	keys := make([]string, 0, len(party))
	for k := range party {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "name" {
			return true
		}
		if keys[j] == "name" {
			return false
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		pdf.CellFormat(90, 5, party[k], "", 2, "L", false, 0, "")
	}
	if pdf.GetY() < y+30 {
		pdf.SetY(y + 30)
	}
}

func formatMoney(cents int64, currency enums.Currency) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + currency.String()
}
