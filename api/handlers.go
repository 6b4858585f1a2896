/*
handlers.go - HTTP API handlers for the charge engine

PURPOSE:
  Exposes the charge engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Charges:
    POST   /api/charges                    Attach a charge to an account
    GET    /api/charges/{id}               Get charge with schedule
    PUT    /api/charges/{id}               Update amount / due date / recurrence
    POST   /api/charges/{id}/pay           Apply a payment
    POST   /api/charges/{id}/waive         Waive an amount
    POST   /api/charges/{id}/undo-pay      Reverse a payment
    POST   /api/charges/{id}/undo-waive    Reverse a waiver
    POST   /api/charges/{id}/inactivate    Terminal close-out

  Accounts:
    GET    /api/accounts/{id}/charges      List an account's charges

  Admin:
    POST   /api/admin/batch/run            Run the maintenance passes now

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (allocator, generator, coordinator)
  4. Persist through the store
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Charge not found
  - 409: Settlement on an inactive charge, or a save that lost a race
         with a concurrent modification (reload and retry)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/charge-engine/batch"
	"github.com/warp/charge-engine/calendar"
	"github.com/warp/charge-engine/charge"
	"github.com/warp/charge-engine/money"
	"github.com/warp/charge-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Generator   *charge.ScheduleGenerator
	Coordinator *batch.Coordinator

	allocator charge.SettlementAllocator
	log       *logrus.Logger
}

// NewHandler creates a handler over the store. The coordinator is
// optional; without it the batch trigger endpoint reports 503.
func NewHandler(store *sqlite.Store, coordinator *batch.Coordinator, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:       store,
		Generator:   charge.NewScheduleGenerator(nil, nil),
		Coordinator: coordinator,
		log:         log,
	}
}

// =============================================================================
// CHARGE HANDLERS
// =============================================================================

// CreateCharge attaches a new charge and generates its schedule when
// recurring.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	spec := charge.Spec{
		ID:                charge.ChargeID(req.ID),
		AccountID:         charge.AccountID(req.AccountID),
		Name:              req.Name,
		Currency:          money.Currency(req.Currency),
		Penalty:           req.Penalty,
		Calculation:       charge.CalculationType(req.Calculation),
		Timing:            charge.TimingType(req.Timing),
		Amount:            amount,
		FeeInterval:       req.FeeInterval,
		CalendarInherited: req.CalendarInherited,
	}
	if req.DueDate != nil {
		due, err := parseDateField(*req.DueDate, "due_date")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		spec.DueDate = &due
	}
	if req.FeeOnMonth != 0 || req.FeeOnDay != 0 {
		spec.FeeOnMonthDay = &calendar.MonthDay{Month: time.Month(req.FeeOnMonth), Day: req.FeeOnDay}
	}

	today := calendar.Today()
	c, err := charge.NewCharge(spec, today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid charge configuration", err)
		return
	}
	if c.IsRecurring() {
		if err := h.Generator.Generate(c, c.RecurrenceRule(), today); err != nil {
			writeError(w, http.StatusBadRequest, "Failed to generate schedule", err)
			return
		}
	}

	if !h.saveCharge(w, r, c) {
		return
	}

	h.log.WithFields(logrus.Fields{"charge": c.ID, "account": c.AccountID}).Info("charge created")
	writeJSON(w, http.StatusCreated, toChargeDTO(c))
}

// GetCharge returns a charge with its schedule.
func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCharge(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// ListAccountCharges returns every charge of an account.
func (h *Handler) ListAccountCharges(w http.ResponseWriter, r *http.Request) {
	accountID := charge.AccountID(chi.URLParam(r, "id"))

	charges, err := h.Store.ListAccountCharges(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list charges", err)
		return
	}

	dtos := make([]ChargeDTO, len(charges))
	for i, c := range charges {
		dtos[i] = toChargeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateCharge mutates amount and/or due date outside settlement.
func (h *Handler) UpdateCharge(w http.ResponseWriter, r *http.Request) {
	var req UpdateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, ok := h.loadCharge(w, r)
	if !ok {
		return
	}

	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
			return
		}
		c.UpdateAmount(amount)
	}
	if req.DueDate != nil {
		due, err := parseDateField(*req.DueDate, "due_date")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		c.UpdateDueDate(due)
	}
	if req.FeeOnMonth != 0 || req.FeeOnDay != 0 || req.FeeInterval != nil {
		var anchor *calendar.MonthDay
		if req.FeeOnMonth != 0 || req.FeeOnDay != 0 {
			anchor = &calendar.MonthDay{Month: time.Month(req.FeeOnMonth), Day: req.FeeOnDay}
		}
		interval := 0
		if req.FeeInterval != nil {
			interval = *req.FeeInterval
		}
		if err := c.UpdateRecurrence(anchor, interval); err != nil {
			writeDomainError(w, err)
			return
		}
		if err := h.Generator.Regenerate(c, c.RecurrenceRule(), calendar.Today()); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if !h.saveCharge(w, r, c) {
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// Inactivate closes the charge out terminally.
func (h *Handler) Inactivate(w http.ResponseWriter, r *http.Request) {
	var req InactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	asOf, err := parseDateField(req.Date, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	c, ok := h.loadCharge(w, r)
	if !ok {
		return
	}

	c.Inactivate(asOf)
	if !h.saveCharge(w, r, c) {
		return
	}

	h.log.WithField("charge", c.ID).Info("charge inactivated")
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// Pay applies a payment to the charge.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.allocator.Pay)
}

// Waive forgives part or all of the charge.
func (h *Handler) Waive(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.allocator.Waive)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request,
	op func(*charge.Charge, money.Money, calendar.Date) (money.Money, error)) {

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	asOf, err := parseDateField(req.Date, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	c, ok := h.loadCharge(w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount, c.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	applied, err := op(c, amount, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !h.saveCharge(w, r, c) {
		return
	}

	writeJSON(w, http.StatusOK, SettlementDTO{Applied: applied.Amount.String(), Charge: toChargeDTO(c)})
}

// UndoPay reverses a prior payment.
func (h *Handler) UndoPay(w http.ResponseWriter, r *http.Request) {
	h.undo(w, r, h.allocator.UndoPay)
}

// UndoWaive reverses a prior waiver.
func (h *Handler) UndoWaive(w http.ResponseWriter, r *http.Request) {
	h.undo(w, r, h.allocator.UndoWaive)
}

func (h *Handler) undo(w http.ResponseWriter, r *http.Request,
	op func(*charge.Charge, money.Money) (money.Money, error)) {

	var req UndoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, ok := h.loadCharge(w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount, c.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	undone, err := op(c, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !h.saveCharge(w, r, c) {
		return
	}

	writeJSON(w, http.StatusOK, SettlementDTO{Applied: undone.Amount.String(), Charge: toChargeDTO(c)})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunBatch triggers the three maintenance passes immediately.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	if h.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "Batch coordinator not configured", nil)
		return
	}

	ctx := r.Context()
	asOf := calendar.Today()
	var reports []BatchReportDTO

	roll, err := h.Coordinator.RollDueDatesForward(ctx, asOf)
	reports = append(reports, toBatchReportDTO(roll))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Roll-forward pass aborted", err)
		return
	}

	settle, err := h.Coordinator.SettleDueCharges(ctx, asOf)
	reports = append(reports, toBatchReportDTO(settle))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Settlement pass aborted", err)
		return
	}

	extend, err := h.Coordinator.ExtendSchedules(ctx, asOf, batch.DefaultLookaheadFloor)
	reports = append(reports, toBatchReportDTO(extend))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Extension pass aborted", err)
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

func toBatchReportDTO(r *batch.Report) BatchReportDTO {
	dto := BatchReportDTO{
		Job:       r.Job,
		Processed: r.Processed,
		Skipped:   r.Skipped,
		Failed:    len(r.Failures),
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, string(f.ChargeID)+": "+f.Err.Error())
	}
	return dto
}

// =============================================================================
// HELPERS
// =============================================================================

// saveCharge persists the aggregate. A version conflict maps to 409 so
// the client can reload and retry with current state.
func (h *Handler) saveCharge(w http.ResponseWriter, r *http.Request, c *charge.Charge) bool {
	err := h.Store.SaveCharge(r.Context(), c)
	if err == nil {
		return true
	}
	if errors.Is(err, charge.ErrConcurrentUpdate) {
		writeError(w, http.StatusConflict, "Charge was modified concurrently, reload and retry", err)
	} else {
		writeError(w, http.StatusInternalServerError, "Failed to save charge", err)
	}
	return false
}

func (h *Handler) loadCharge(w http.ResponseWriter, r *http.Request) (*charge.Charge, bool) {
	id := charge.ChargeID(chi.URLParam(r, "id"))
	c, err := h.Store.GetCharge(r.Context(), id)
	if errors.Is(err, charge.ErrChargeNotFound) {
		writeError(w, http.StatusNotFound, "Charge not found", nil)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load charge", err)
		return nil, false
	}
	return c, true
}

func parseAmount(raw string, currency money.Currency) (money.Money, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(currency, d), nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, charge.ErrChargeInactive):
		writeError(w, http.StatusConflict, "Charge is inactive", err)
	case errors.Is(err, charge.ErrMissingMandatoryField),
		errors.Is(err, charge.ErrInvalidFeeInterval),
		errors.Is(err, charge.ErrNotRecurring),
		errors.Is(err, charge.ErrScheduleAnchorMissing):
		writeError(w, http.StatusBadRequest, "Invalid charge operation", err)
	default:
		writeError(w, http.StatusInternalServerError, "Operation failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
