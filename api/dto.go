/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Amounts travel as decimal strings ("100.00"), never floats. Dates are
  ISO (YYYY-MM-DD). Parsing failures are client errors.

SEE ALSO:
  - handlers.go: Uses these types
  - charge/charge.go: The domain model being exposed
*/
package api

import (
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateChargeRequest is the request to attach a charge to an account.
type CreateChargeRequest struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Penalty   bool   `json:"penalty"`

	Calculation string `json:"calculation"`
	Timing      string `json:"timing"`

	// Amount is the flat amount or the percentage, depending on the
	// calculation type. Decimal string.
	Amount string `json:"amount"`

	DueDate           *string `json:"due_date,omitempty"`
	FeeOnMonth        int     `json:"fee_on_month,omitempty"`
	FeeOnDay          int     `json:"fee_on_day,omitempty"`
	FeeInterval       *int    `json:"fee_interval,omitempty"`
	CalendarInherited bool    `json:"calendar_inherited,omitempty"`
}

// SettleRequest covers pay and waive calls.
type SettleRequest struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

// UndoRequest reverses a prior payment or waiver.
type UndoRequest struct {
	Amount string `json:"amount"`
}

// UpdateChargeRequest mutates a charge outside settlement. Absent fields
// are left unchanged.
type UpdateChargeRequest struct {
	Amount      *string `json:"amount,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	FeeOnMonth  int     `json:"fee_on_month,omitempty"`
	FeeOnDay    int     `json:"fee_on_day,omitempty"`
	FeeInterval *int    `json:"fee_interval,omitempty"`
}

// InactivateRequest closes a charge out terminally.
type InactivateRequest struct {
	Date string `json:"date"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChargeDTO represents a charge aggregate in API responses.
type ChargeDTO struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Penalty   bool   `json:"penalty"`

	Calculation string `json:"calculation"`
	Timing      string `json:"timing"`
	Status      string `json:"status"`

	Amount     string `json:"amount"`
	Percentage string `json:"percentage,omitempty"`

	StartDate string `json:"start_date,omitempty"`
	DueDate   string `json:"due_date,omitempty"`

	FeeOnMonth        int  `json:"fee_on_month,omitempty"`
	FeeOnDay          int  `json:"fee_on_day,omitempty"`
	FeeInterval       int  `json:"fee_interval,omitempty"`
	CalendarInherited bool `json:"calendar_inherited,omitempty"`

	AmountPaid        string `json:"amount_paid"`
	AmountWaived      string `json:"amount_waived"`
	AmountWrittenOff  string `json:"amount_written_off"`
	AmountOutstanding string `json:"amount_outstanding"`

	InactivatedOn string `json:"inactivated_on,omitempty"`

	Installments []InstallmentDTO `json:"installments,omitempty"`
}

// InstallmentDTO represents one schedule row.
type InstallmentDTO struct {
	Number           int    `json:"number"`
	DueDate          string `json:"due_date"`
	DueAmount        string `json:"due_amount"`
	PaidAmount       string `json:"paid_amount"`
	WaivedAmount     string `json:"waived_amount"`
	ObligationsMetOn string `json:"obligations_met_on,omitempty"`
	Waived           bool   `json:"waived,omitempty"`
}

// SettlementDTO reports what a settlement or reversal actually moved.
type SettlementDTO struct {
	Applied string    `json:"applied"`
	Charge  ChargeDTO `json:"charge"`
}

// BatchReportDTO summarizes one coordinator pass.
type BatchReportDTO struct {
	Job       string   `json:"job"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Failures  []string `json:"failures,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toChargeDTO(c *charge.Charge) ChargeDTO {
	dto := ChargeDTO{
		ID:                string(c.ID),
		AccountID:         string(c.AccountID),
		Name:              c.Name,
		Currency:          string(c.Currency),
		Penalty:           c.Penalty,
		Calculation:       string(c.Calculation),
		Timing:            string(c.Timing),
		Status:            string(c.Status()),
		Amount:            c.Amount.Amount.String(),
		FeeOnMonth:        int(c.FeeOnMonth),
		FeeOnDay:          c.FeeOnDay,
		FeeInterval:       c.FeeInterval,
		CalendarInherited: c.CalendarInherited,
		AmountPaid:        c.AmountPaid.Amount.String(),
		AmountWaived:      c.AmountWaived.Amount.String(),
		AmountWrittenOff:  c.AmountWrittenOff.Amount.String(),
		AmountOutstanding: c.AmountOutstanding.Amount.String(),
	}
	if !c.Percentage.IsZero() {
		dto.Percentage = c.Percentage.String()
	}
	if !c.StartDate.IsZero() {
		dto.StartDate = c.StartDate.String()
	}
	if !c.DueDate.IsZero() {
		dto.DueDate = c.DueDate.String()
	}
	if c.InactivatedOn != nil {
		dto.InactivatedOn = c.InactivatedOn.String()
	}
	for _, in := range c.Schedule.Installments {
		dto.Installments = append(dto.Installments, toInstallmentDTO(in))
	}
	return dto
}

func toInstallmentDTO(in *charge.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		Number:       in.Number,
		DueDate:      in.DueDate.String(),
		DueAmount:    in.DueAmount.Amount.String(),
		PaidAmount:   in.PaidAmount.Amount.String(),
		WaivedAmount: in.WaivedAmount.Amount.String(),
		Waived:       in.Waived,
	}
	if in.ObligationsMetOn != nil {
		dto.ObligationsMetOn = in.ObligationsMetOn.String()
	}
	return dto
}

func parseDateField(value, field string) (calendar.Date, error) {
	d, err := calendar.ParseDate(value)
	if err != nil {
		return calendar.Date{}, &fieldError{field: field, hint: "use YYYY-MM-DD"}
	}
	return d, nil
}

// fieldError is a client-input error tied to one request field.
type fieldError struct {
	field string
	hint  string
}

func (e *fieldError) Error() string {
	return "invalid " + e.field + " (" + e.hint + ")"
}
