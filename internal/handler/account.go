package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/service"
)

// AccountHandler обрабатывает запросы, связанные со счетами
type AccountHandler struct {
	accountService *service.AccountService // Сервис для работы со счетами
	logger         *logrus.Logger          // Логгер
}

// NewAccountHandler создает новый AccountHandler
func NewAccountHandler(accountService *service.AccountService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// RegisterRoutes регистрирует маршруты для работы со счетами
func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)                    // Открытие счета
	router.HandleFunc("/accounts/savings", h.OpenSavingAccount).Methods(http.MethodPost)        // Открытие накопительного счета
	router.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccount).Methods(http.MethodGet)            // Счет по id
	router.HandleFunc("/accounts/{id:[0-9]+}/status", h.ChangeStatus).Methods(http.MethodPatch) // Блокировка/закрытие
	router.HandleFunc("/accounts/{id:[0-9]+}/owners", h.AddOwner).Methods(http.MethodPost)      // Совладелец
}

// CreateAccount обрабатывает запрос на открытие счета
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAccountRequest
	// Декодируем входные данные
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать запрос на создание счета")
		writeError(w, h.logger, err, nil)
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), req)
	if err != nil {
		h.logger.WithError(err).Warn("Не удалось создать счет")
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, account)
}

// OpenSavingAccount обрабатывает запрос на открытие накопительного счета
func (h *AccountHandler) OpenSavingAccount(w http.ResponseWriter, r *http.Request) {
	var req model.OpenSavingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	account, err := h.accountService.OpenSavingAccount(r.Context(), req)
	if err != nil {
		h.logger.WithError(err).Warn("Не удалось открыть накопительный счет")
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, account)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, account)
}

// ChangeStatus обрабатывает смену статуса: active, blocked, closed
func (h *AccountHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	var req model.ChangeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	account, err := h.accountService.ChangeStatus(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, account)
}

func (h *AccountHandler) AddOwner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	var req model.AddOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	if err := h.accountService.AddCoOwner(r.Context(), id, req.UserID); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
