package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"splitbudget/internal/aggregate"
	"splitbudget/internal/budget"
	"splitbudget/internal/core"
	"splitbudget/internal/services"
	"splitbudget/internal/storage"
	"splitbudget/internal/window"
)

// Wire DTOs. Money travels as fixed two-decimal strings so clients
// never see binary-float artifacts.
type (
	monthDTO struct {
		Year  int    `json:"year"`
		Month int    `json:"month"`
		Label string `json:"label"`
	}

	categoryDTO struct {
		Name       string `json:"name"`
		Icon       string `json:"icon"`
		Amount     string `json:"amount"`
		Count      int    `json:"count"`
		Percentage string `json:"percentage"`
	}

	seriesPointDTO struct {
		Year      int    `json:"year"`
		Month     int    `json:"month"`
		Label     string `json:"label"`
		Budget    string `json:"budget"`
		Spent     string `json:"spent"`
		IsCurrent bool   `json:"isCurrent"`
	}

	summaryDTO struct {
		TotalSpent       string           `json:"totalSpent"`
		Remaining        string           `json:"remaining"`
		PercentUsed      string           `json:"percentUsed"`
		PercentRemaining string           `json:"percentRemaining"`
		Categories       []categoryDTO    `json:"categories"`
		MonthlySeries    []seriesPointDTO `json:"monthlySeries"`
		Skipped          int              `json:"skippedExpenses,omitempty"`
	}

	settlementDTO struct {
		ID        string `json:"id"`
		FromUser  string `json:"fromUser"`
		ToUser    string `json:"toUser"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
		SettledAt string `json:"settledAt"`
	}

	dashboardDTO struct {
		UserID          string          `json:"userId"`
		UserName        string          `json:"userName"`
		HasGroup        bool            `json:"hasGroup"`
		GroupID         string          `json:"groupId,omitempty"`
		GroupName       string          `json:"groupName,omitempty"`
		DisplayCurrency string          `json:"displayCurrency"`
		Mode            string          `json:"mode"`
		Month           monthDTO        `json:"month"`
		AvailableMonths []monthDTO      `json:"availableMonths"`
		Summary         summaryDTO      `json:"summary"`
		Settlements     []settlementDTO `json:"settlements"`
		RatesStale      bool            `json:"ratesStale"`
	}
)

func toMonthDTO(k core.MonthKey) monthDTO {
	return monthDTO{Year: k.Year, Month: k.Month, Label: k.Label()}
}

func toSummaryDTO(s aggregate.Summary) summaryDTO {
	out := summaryDTO{
		TotalSpent:       s.TotalSpent.StringFixed(2),
		Remaining:        s.Remaining.StringFixed(2),
		PercentUsed:      s.PercentUsed.StringFixed(1),
		PercentRemaining: s.PercentRemaining.StringFixed(1),
		Categories:       make([]categoryDTO, 0, len(s.Categories)),
		MonthlySeries:    make([]seriesPointDTO, 0, len(s.MonthlySeries)),
		Skipped:          s.Skipped,
	}
	for _, c := range s.Categories {
		out.Categories = append(out.Categories, categoryDTO{
			Name:       c.Name,
			Icon:       c.Icon,
			Amount:     c.Amount.StringFixed(2),
			Count:      c.Count,
			Percentage: c.Percentage.StringFixed(1),
		})
	}
	for _, p := range s.MonthlySeries {
		out.MonthlySeries = append(out.MonthlySeries, seriesPointDTO{
			Year:      p.Month.Year,
			Month:     p.Month.Month,
			Label:     p.Label,
			Budget:    p.Budget.StringFixed(2),
			Spent:     p.Spent.StringFixed(2),
			IsCurrent: p.IsCurrent,
		})
	}
	return out
}

func toSettlementDTOs(settlements []core.Settlement) []settlementDTO {
	out := make([]settlementDTO, 0, len(settlements))
	for _, st := range settlements {
		out = append(out, settlementDTO{
			ID:        st.ID,
			FromUser:  st.FromUser,
			ToUser:    st.ToUser,
			Amount:    st.Amount.StringFixed(2),
			Currency:  st.Currency,
			SettledAt: st.SettledAt.Format(time.RFC3339),
		})
	}
	return out
}

func toDashboardDTO(d services.Dashboard) dashboardDTO {
	out := dashboardDTO{
		UserID:          d.User.ID,
		UserName:        d.User.Name,
		HasGroup:        d.HasGroup,
		DisplayCurrency: d.DisplayCurrency,
		Mode:            string(d.Mode),
		Month:           toMonthDTO(d.Month),
		AvailableMonths: make([]monthDTO, 0, len(d.AvailableMonths)),
		Summary:         toSummaryDTO(d.Summary),
		Settlements:     toSettlementDTOs(d.Settlements),
		RatesStale:      d.RatesStale,
	}
	if d.HasGroup {
		out.GroupID = d.Group.ID
		out.GroupName = d.Group.Name
	}
	for _, m := range d.AvailableMonths {
		out.AvailableMonths = append(out.AvailableMonths, toMonthDTO(m))
	}
	return out
}

// parseWindow reads mode/year/month query parameters. Mode defaults to
// current; custom requires both year and month.
func parseWindow(r *http.Request) (window.Mode, *core.MonthKey, error) {
	q := r.URL.Query()

	mode := window.Mode(strings.TrimSpace(q.Get("mode")))
	if mode == "" {
		if q.Get("year") != "" || q.Get("month") != "" {
			mode = window.ModeCustom
		} else {
			mode = window.ModeCurrent
		}
	}
	if !mode.Valid() {
		return "", nil, errors.New("mode must be current or custom")
	}
	if mode == window.ModeCurrent {
		return mode, nil, nil
	}

	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		return "", nil, errors.New("custom window requires a numeric year")
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		return "", nil, errors.New("custom window requires a month between 1 and 12")
	}
	key := core.MonthKey{Year: year, Month: month}
	return mode, &key, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user query parameter is required")
		return
	}

	mode, month, err := parseWindow(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.dashboard.Snapshot(r.Context(), userID, mode, month)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown user")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "dashboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user query parameter is required")
		return
	}

	d, err := s.dashboard.Snapshot(r.Context(), userID, window.ModeCurrent, nil)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown user")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "months unavailable")
		return
	}

	months := make([]monthDTO, 0, len(d.AvailableMonths))
	for _, m := range d.AvailableMonths {
		months = append(months, toMonthDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": months})
}

type createExpenseRequest struct {
	GroupID      string            `json:"groupId"`
	Date         string            `json:"date"`
	Description  string            `json:"description"`
	Amount       string            `json:"amount"`
	Currency     string            `json:"currency"`
	Category     string            `json:"category"`
	PaidBy       string            `json:"paidBy"`
	SplitBetween []string          `json:"splitBetween"`
	Shares       map[string]string `json:"shares,omitempty"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.GroupID == "" {
		writeError(w, r, http.StatusBadRequest, "groupId is required")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	e := core.Expense{
		Date:         core.Date{Time: date},
		Description:  strings.TrimSpace(req.Description),
		Amount:       amount,
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
		Category:     strings.TrimSpace(req.Category),
		PaidBy:       req.PaidBy,
		SplitBetween: req.SplitBetween,
	}
	if len(req.Shares) > 0 {
		e.Shares = make(map[string]decimal.Decimal, len(req.Shares))
		for user, raw := range req.Shares {
			share, err := decimal.NewFromString(raw)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "share for "+user+" must be a decimal number")
				return
			}
			e.Shares[user] = share
		}
	}

	id, err := s.expenses.CreateExpense(r.Context(), req.GroupID, e)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type setBudgetRequest struct {
	Budget string `json:"budget"`
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req setBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	value, err := decimal.NewFromString(req.Budget)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "budget must be a decimal number")
		return
	}

	ctrl, err := s.controllerFor(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown user")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "budget unavailable")
		return
	}

	if err := ctrl.Edit(value); err != nil {
		switch {
		case errors.Is(err, budget.ErrNegativeBudget):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, budget.ErrCommitInFlight):
			writeError(w, r, http.StatusConflict, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if err := ctrl.Commit(r.Context()); err != nil {
		switch {
		case errors.Is(err, budget.ErrCommitInFlight):
			writeError(w, r, http.StatusConflict, err.Error())
		default:
			// Controller already reverted to the last committed value.
			writeError(w, r, http.StatusBadGateway, "budget save failed, previous value kept")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"userId": userID,
		"budget": ctrl.Committed().StringFixed(2),
	})
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	settlements, err := s.repo.ListSettlements(r.Context(), groupID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "settlements unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": toSettlementDTOs(settlements)})
}
