package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/service"
)

type TransactionHandler struct {
	ledger *service.LedgerService
	logger *logrus.Logger
}

func NewTransactionHandler(ledger *service.LedgerService, logger *logrus.Logger) *TransactionHandler {
	return &TransactionHandler{ledger: ledger, logger: logger}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/transactions", h.Submit).Methods(http.MethodPost)
	router.HandleFunc("/transactions/pending", h.CreatePending).Methods(http.MethodPost)
	router.HandleFunc("/transactions/{id:[0-9]+}", h.GetTransaction).Methods(http.MethodGet)
	router.HandleFunc("/transactions/{id:[0-9]+}", h.DeleteTransaction).Methods(http.MethodDelete)
	router.HandleFunc("/transactions/{id:[0-9]+}/settle", h.Settle).Methods(http.MethodPost)
	router.HandleFunc("/transactions/{id:[0-9]+}/cancel", h.Cancel).Methods(http.MethodPost)
	router.HandleFunc("/accounts/{id:[0-9]+}/transactions", h.ListAccountTransactions).Methods(http.MethodGet)
}

// Submit проводит операцию. Ключ идемпотентности можно передать в теле
// или заголовком Idempotency-Key.
func (h *TransactionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать запрос на операцию")
		writeError(w, h.logger, err, nil)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	txn, err := h.ledger.Submit(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err, txn)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, txn)
}

func (h *TransactionHandler) CreatePending(w http.ResponseWriter, r *http.Request) {
	var req model.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	txn, err := h.ledger.CreatePending(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, txn)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	txn, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, txn)
}

// DeleteTransaction всегда отвечает 403: транзакции не удаляются
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeError(w, h.logger, h.ledger.DeleteTransaction(r.Context(), id), nil)
}

func (h *TransactionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	txn, err := h.ledger.Settle(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, txn)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, txn)
}

func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	txn, err := h.ledger.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, txn)
}

// ListAccountTransactions: ?status=&from=YYYY-MM-DD&to=YYYY-MM-DD&limit=&offset=
func (h *TransactionHandler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	filter := model.TransactionFilter{
		AccountID: id,
		Status:    model.TransactionStatus(r.URL.Query().Get("status")),
	}
	if filter.From, err = queryDate(r, "from"); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1) // to включительно
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	transactions, err := h.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if transactions == nil {
		transactions = []model.Transaction{}
	}
	writeJSON(w, h.logger, http.StatusOK, transactions)
}
