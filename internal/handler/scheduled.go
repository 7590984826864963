package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/service"
)

type ScheduledHandler struct {
	scheduler *service.SchedulerService
	logger    *logrus.Logger
}

func NewScheduledHandler(scheduler *service.SchedulerService, logger *logrus.Logger) *ScheduledHandler {
	return &ScheduledHandler{scheduler: scheduler, logger: logger}
}

func (h *ScheduledHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/scheduled-transfers", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/scheduled-transfers/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{id:[0-9]+}/scheduled-transfers", h.ListForAccount).Methods(http.MethodGet)
}

// даты в формате YYYY-MM-DD
type scheduledTransferRequest struct {
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	Frequency         model.Frequency `json:"frequency"`
	StartDate         string          `json:"start_date"`
	EndDate           string          `json:"end_date"`
}

func (req scheduledTransferRequest) toModel() (model.CreateScheduledTransferRequest, error) {
	out := model.CreateScheduledTransferRequest{
		SenderAccountID:   req.SenderAccountID,
		ReceiverAccountID: req.ReceiverAccountID,
		Amount:            req.Amount,
		Description:       req.Description,
		Frequency:         req.Frequency,
	}
	if req.StartDate != "" {
		start, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			return out, model.NewError(model.KindValidation, "", "invalid start_date, use YYYY-MM-DD")
		}
		out.StartDate = start
	}
	if req.EndDate != "" {
		end, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return out, model.NewError(model.KindValidation, "", "invalid end_date, use YYYY-MM-DD")
		}
		out.EndDate = &end
	}
	return out, nil
}

func (h *ScheduledHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body scheduledTransferRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	req, err := body.toModel()
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	st, err := h.scheduler.CreateScheduledTransfer(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, st)
}

func (h *ScheduledHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	st, err := h.scheduler.GetScheduledTransfer(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

func (h *ScheduledHandler) ListForAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	transfers, err := h.scheduler.ListScheduledTransfers(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if transfers == nil {
		transfers = []model.ScheduledTransfer{}
	}
	writeJSON(w, h.logger, http.StatusOK, transfers)
}
