package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaopcs/fundledger-backend/internal/domain"
	"github.com/joaopcs/fundledger-backend/internal/usecase/holdings"
	"github.com/joaopcs/fundledger-backend/internal/usecase/recalc"
	"github.com/joaopcs/fundledger-backend/internal/usecase/redemption"
	"github.com/joaopcs/fundledger-backend/internal/usecase/subscription"
)

// Decimals travel as strings on the wire so precision survives JSON.

type fundResponse struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	BaseCurrency          string  `json:"base_currency"`
	FundMode              bool    `json:"fund_mode"`
	NavPerUnit            string  `json:"nav_per_unit"`
	TotalOutstandingUnits string  `json:"total_outstanding_units"`
	CashBalance           string  `json:"cash_balance"`
	LastNavDate           *string `json:"last_nav_date,omitempty"`
}

type holdingResponse struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	FundID         string `json:"fund_id"`
	TotalUnits     string `json:"total_units"`
	AvgCostPerUnit string `json:"avg_cost_per_unit"`
}

type transactionResponse struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	FundID        string `json:"fund_id"`
	HoldingType   string `json:"holding_type"`
	Units         string `json:"units"`
	NavPerUnit    string `json:"nav_per_unit"`
	Amount        string `json:"amount"`
	EffectiveDate string `json:"effective_date"`
	CreatedAt     string `json:"created_at"`
	CashFlowID    string `json:"cash_flow_id"`
}

type holdingSummaryResponse struct {
	Holding         holdingResponse `json:"holding"`
	NavPerUnit      string          `json:"nav_per_unit"`
	TotalInvestment string          `json:"total_investment"`
	CurrentValue    string          `json:"current_value"`
	UnrealizedPnL   string          `json:"unrealized_pnl"`
}

func toFundResponse(fund *domain.Fund) fundResponse {
	resp := fundResponse{
		ID:                    fund.ID.String(),
		Name:                  fund.Name,
		BaseCurrency:          fund.BaseCurrency,
		FundMode:              fund.FundMode,
		NavPerUnit:            fund.NavPerUnit.String(),
		TotalOutstandingUnits: fund.TotalOutstandingUnits.String(),
		CashBalance:           fund.CashBalance.String(),
	}
	if fund.LastNavDate != nil {
		date := fund.LastNavDate.Format(time.RFC3339)
		resp.LastNavDate = &date
	}
	return resp
}

func toHoldingResponse(holding *domain.InvestorHolding) holdingResponse {
	return holdingResponse{
		ID:             holding.ID.String(),
		AccountID:      holding.AccountID.String(),
		FundID:         holding.FundID.String(),
		TotalUnits:     holding.TotalUnits.String(),
		AvgCostPerUnit: holding.AvgCostPerUnit.String(),
	}
}

func toTransactionResponse(tx *domain.FundUnitTransaction) transactionResponse {
	return transactionResponse{
		ID:            tx.ID.String(),
		AccountID:     tx.AccountID.String(),
		FundID:        tx.FundID.String(),
		HoldingType:   string(tx.HoldingType),
		Units:         tx.Units.String(),
		NavPerUnit:    tx.NavPerUnit.String(),
		Amount:        tx.Amount.String(),
		EffectiveDate: tx.EffectiveDate.Format(time.RFC3339),
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
		CashFlowID:    tx.CashFlowID.String(),
	}
}

func toHoldingSummaryResponse(summary holdings.HoldingSummary) holdingSummaryResponse {
	return holdingSummaryResponse{
		Holding:         toHoldingResponse(summary.Holding),
		NavPerUnit:      summary.NavPerUnit.String(),
		TotalInvestment: summary.TotalInvestment.String(),
		CurrentValue:    summary.CurrentValue.String(),
		UnrealizedPnL:   summary.UnrealizedPnL.String(),
	}
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrFundNotFound),
		errors.Is(err, domain.ErrHoldingNotFound),
		errors.Is(err, domain.ErrTransactionNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrConfirmationRequired):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotAFund),
		errors.Is(err, domain.ErrConcurrentRecalculation),
		errors.Is(err, domain.ErrReplayInconsistency):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientUnits),
		errors.Is(err, domain.ErrInsufficientPrecision),
		errors.Is(err, domain.ErrInvalidValuation):
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseUUID(w http.ResponseWriter, value, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}

func parseDecimal(w http.ResponseWriter, value, label string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid "+label)
		return decimal.Zero, false
	}
	return d, true
}

// parseOptionalDate parses an RFC3339 timestamp; empty means unset.
func parseOptionalDate(w http.ResponseWriter, value, label string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid "+label)
		return nil, false
	}
	return &t, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// routeFunds dispatches /api/funds/{fundID}/<action>.
func (s *Server) routeFunds(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/funds/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	fundID, ok := parseUUID(w, parts[0], "fund ID")
	if !ok {
		return
	}

	switch parts[1] {
	case "subscriptions":
		s.handleSubscribe(w, r, fundID)
	case "redemptions":
		s.handleRedeem(w, r, fundID)
	case "nav/recalculate":
		s.handleNavRecalculate(w, r, fundID)
	case "recalculate":
		s.handleRecalculate(w, r, fundID)
	case "holdings":
		s.handleFundHoldings(w, r, fundID)
	case "valuations":
		s.handleRecordValuation(w, r, fundID)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

type subscribeRequest struct {
	AccountID     string `json:"account_id"`
	Amount        string `json:"amount"`
	EffectiveDate string `json:"effective_date,omitempty"`
	Description   string `json:"description,omitempty"`
	FundingSource string `json:"funding_source,omitempty"`
}

type subscribeResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Holding     holdingResponse     `json:"holding"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, fundID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req subscribeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	accountID, ok := parseUUID(w, req.AccountID, "account ID")
	if !ok {
		return
	}
	amount, ok := parseDecimal(w, req.Amount, "amount")
	if !ok {
		return
	}
	effectiveDate, ok := parseOptionalDate(w, req.EffectiveDate, "effective date")
	if !ok {
		return
	}

	input := subscription.SubscribeInput{
		AccountID:     accountID,
		FundID:        fundID,
		Amount:        amount,
		Description:   req.Description,
		FundingSource: req.FundingSource,
	}
	if effectiveDate != nil {
		input.EffectiveDate = *effectiveDate
	}

	result, err := s.services.Subscription.Subscribe(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, subscribeResponse{
		Transaction: toTransactionResponse(result.Transaction),
		Holding:     toHoldingResponse(result.Holding),
	})
}

type redeemRequest struct {
	AccountID     string `json:"account_id"`
	Units         string `json:"units"`
	EffectiveDate string `json:"effective_date,omitempty"`
	Description   string `json:"description,omitempty"`
	FundingSource string `json:"funding_source,omitempty"`
}

type redeemResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Holding     holdingResponse     `json:"holding"`
	RealizedPnL string              `json:"realized_pnl"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request, fundID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req redeemRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	accountID, ok := parseUUID(w, req.AccountID, "account ID")
	if !ok {
		return
	}
	units, ok := parseDecimal(w, req.Units, "units")
	if !ok {
		return
	}
	effectiveDate, ok := parseOptionalDate(w, req.EffectiveDate, "effective date")
	if !ok {
		return
	}

	input := redemption.RedeemInput{
		AccountID:     accountID,
		FundID:        fundID,
		Units:         units,
		Description:   req.Description,
		FundingSource: req.FundingSource,
	}
	if effectiveDate != nil {
		input.EffectiveDate = *effectiveDate
	}

	result, err := s.services.Redemption.Redeem(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, redeemResponse{
		Transaction: toTransactionResponse(result.Transaction),
		Holding:     toHoldingResponse(result.Holding),
		RealizedPnL: result.RealizedPnL.String(),
	})
}

type navResponse struct {
	NavPerUnit string `json:"nav_per_unit"`
	AsOf       string `json:"as_of"`
}

func (s *Server) handleNavRecalculate(w http.ResponseWriter, r *http.Request, fundID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := s.services.Nav.ComputeNav(r.Context(), fundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, navResponse{
		NavPerUnit: result.NavPerUnit.String(),
		AsOf:       result.AsOf.Format(time.RFC3339),
	})
}

type recalculateResponse struct {
	Fund     fundResponse      `json:"fund"`
	Holdings []holdingResponse `json:"holdings"`
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request, fundID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	fund, rebuilt, err := s.services.Recalc.RecalculateAllHoldings(r.Context(), fundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := recalculateResponse{
		Fund:     toFundResponse(fund),
		Holdings: make([]holdingResponse, 0, len(rebuilt)),
	}
	for _, holding := range rebuilt {
		resp.Holdings = append(resp.Holdings, toHoldingResponse(holding))
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFundHoldings(w http.ResponseWriter, r *http.Request, fundID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	summaries, err := s.services.Holdings.ListFundHoldings(r.Context(), fundID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]holdingSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		resp = append(resp, toHoldingSummaryResponse(summary))
	}

	WriteJSON(w, http.StatusOK, resp)
}

type valuationRequest struct {
	MarketValue string `json:"market_value"`
	Date        string `json:"date,omitempty"`
}

type valuationResponse struct {
	ID          string `json:"id"`
	FundID      string `json:"fund_id"`
	Date        string `json:"date"`
	MarketValue string `json:"market_value"`
}

func (s *Server) handleRecordValuation(w http.ResponseWriter, r *http.Request, fundID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req valuationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	marketValue, ok := parseDecimal(w, req.MarketValue, "market value")
	if !ok {
		return
	}
	date, ok := parseOptionalDate(w, req.Date, "date")
	if !ok {
		return
	}

	var when time.Time
	if date != nil {
		when = *date
	}

	point, err := s.services.Valuation.RecordValuation(r.Context(), fundID, marketValue, when)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, valuationResponse{
		ID:          point.ID.String(),
		FundID:      point.FundID.String(),
		Date:        point.Date.Format(time.RFC3339),
		MarketValue: point.MarketValue.String(),
	})
}

// routePortfolios dispatches /api/portfolios/{portfolioID}/<action>.
func (s *Server) routePortfolios(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/portfolios/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	portfolioID, ok := parseUUID(w, parts[0], "portfolio ID")
	if !ok {
		return
	}

	switch parts[1] {
	case "convert-to-fund":
		s.handleConvertToFund(w, r, portfolioID)
	case "convert-to-portfolio":
		s.handleConvertToPortfolio(w, r, portfolioID)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

type convertToFundRequest struct {
	SnapshotDate string `json:"snapshot_date,omitempty"`
}

func (s *Server) handleConvertToFund(w http.ResponseWriter, r *http.Request, portfolioID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req convertToFundRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}

	snapshotDate, ok := parseOptionalDate(w, req.SnapshotDate, "snapshot date")
	if !ok {
		return
	}

	fund, err := s.services.Conversion.ConvertToFund(r.Context(), portfolioID, snapshotDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toFundResponse(fund))
}

type convertToPortfolioRequest struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) handleConvertToPortfolio(w http.ResponseWriter, r *http.Request, portfolioID uuid.UUID) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req convertToPortfolioRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}

	fund, err := s.services.Conversion.ConvertToPortfolio(r.Context(), portfolioID, req.Confirm)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toFundResponse(fund))
}

type holdingDetailResponse struct {
	Summary      holdingSummaryResponse `json:"summary"`
	Transactions []transactionResponse  `json:"transactions"`
}

func (s *Server) handleHoldingDetail(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	holdingID, ok := parseUUID(w, PathParam(r, "/api/holdings/", ""), "holding ID")
	if !ok {
		return
	}

	detail, err := s.services.Holdings.GetHoldingDetail(r.Context(), holdingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := holdingDetailResponse{
		Summary:      toHoldingSummaryResponse(detail.Summary),
		Transactions: make([]transactionResponse, 0, len(detail.Transactions)),
	}
	for _, tx := range detail.Transactions {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(tx))
	}

	WriteJSON(w, http.StatusOK, resp)
}

type updateTransactionRequest struct {
	Units         *string `json:"units,omitempty"`
	Amount        *string `json:"amount,omitempty"`
	Description   *string `json:"description,omitempty"`
	EffectiveDate *string `json:"effective_date,omitempty"`
}

// handleTransaction serves PUT (edit) and DELETE on
// /api/transactions/{transactionID}. Both routes trigger a full replay.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut, http.MethodDelete) {
		return
	}

	transactionID, ok := parseUUID(w, PathParam(r, "/api/transactions/", ""), "transaction ID")
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.services.Recalc.DeleteTransaction(r.Context(), transactionID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req updateTransactionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	input := recalc.UpdateTransactionInput{Description: req.Description}

	if req.Units != nil {
		units, ok := parseDecimal(w, *req.Units, "units")
		if !ok {
			return
		}
		input.Units = &units
	}
	if req.Amount != nil {
		amount, ok := parseDecimal(w, *req.Amount, "amount")
		if !ok {
			return
		}
		input.Amount = &amount
	}
	if req.EffectiveDate != nil {
		date, ok := parseOptionalDate(w, *req.EffectiveDate, "effective date")
		if !ok {
			return
		}
		input.EffectiveDate = date
	}

	updated, err := s.services.Recalc.UpdateTransaction(r.Context(), transactionID, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toTransactionResponse(updated))
}
