package invoices

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the stored lifecycle state of an invoice.
type Status string

// Invoice states. Paid and cancelled are terminal.
const (
	StatusDraft     Status = "draft"
	StatusIssued    Status = "issued"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// DisplayOverdue is reported in DisplayStatus for issued invoices past due.
// It is never stored.
const DisplayOverdue = "overdue"

// PaymentTerm is the time between issue and due date.
const PaymentTerm = 15 * 24 * time.Hour

// TaxRate is applied to the base amount.
var TaxRate = decimal.RequireFromString("0.25")

// Invoice bills one completed work order. Customer and vehicle fields are
// read through the work order.
type Invoice struct {
	InvoiceID       string          `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	WorkOrderID     string          `json:"work_order_id"`
	CustomerID      string          `json:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	WorkDescription string          `json:"work_description,omitempty"`
	LicensePlate    string          `json:"license_plate,omitempty"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	DisplayStatus   string          `json:"display_status"`
	DaysOverdue     int             `json:"days_overdue"`
	IssuedAt        *time.Time      `json:"issued_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DaysOverdue counts whole days past the due date of an issued invoice.
func DaysOverdue(status Status, issuedAt *time.Time, now time.Time) int {
	if status != StatusIssued || issuedAt == nil {
		return 0
	}
	late := now.Sub(issuedAt.Add(PaymentTerm))
	if late <= 0 {
		return 0
	}
	return int(late / (24 * time.Hour))
}

func (i *Invoice) fillDerived(now time.Time) {
	i.DaysOverdue = DaysOverdue(i.Status, i.IssuedAt, now)
	i.DisplayStatus = string(i.Status)
	if i.DaysOverdue > 0 {
		i.DisplayStatus = DisplayOverdue
	}
}

// Amounts computes tax and total for a base amount, rounded to cents.
func Amounts(base decimal.Decimal) (baseAmount, tax, total decimal.Decimal) {
	baseAmount = base.Round(2)
	tax = baseAmount.Mul(TaxRate).Round(2)
	return baseAmount, tax, baseAmount.Add(tax)
}

// Number formats an invoice number from the issuing year and a sequence value.
func Number(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}

// state is the audited projection of an invoice row.
type state struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	WorkOrderID   string          `json:"work_order_id"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        Status          `json:"status"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

func (i Invoice) state() state {
	return state{
		InvoiceID:     i.InvoiceID,
		InvoiceNumber: i.InvoiceNumber,
		WorkOrderID:   i.WorkOrderID,
		BaseAmount:    i.BaseAmount,
		TaxAmount:     i.TaxAmount,
		TotalAmount:   i.TotalAmount,
		Status:        i.Status,
		IssuedAt:      i.IssuedAt,
		PaidAt:        i.PaidAt,
	}
}

// OrderSnapshot is the part of a work order that invoicing depends on.
type OrderSnapshot struct {
	WorkOrderID   string
	CustomerID    string
	Status        string
	EstimatedCost decimal.NullDecimal
	ActualCost    decimal.NullDecimal
}

// CreateInput requests an invoice for a work order.
type CreateInput struct {
	WorkOrderID string `json:"work_order_id" validate:"required"`
}

// ListFilter scopes a listing. With neither field set the listing is empty.
type ListFilter struct {
	All        bool
	CustomerID string
}
