package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/service"
)

// UserHandler обрабатывает запросы по пользователям, рефералам и достижениям
type UserHandler struct {
	accountService     *service.AccountService
	achievementService *service.AchievementService
	logger             *logrus.Logger
}

func NewUserHandler(
	accountService *service.AccountService,
	achievementService *service.AchievementService,
	logger *logrus.Logger,
) *UserHandler {
	return &UserHandler{
		accountService:     accountService,
		achievementService: achievementService,
		logger:             logger,
	}
}

// RegisterRoutes регистрирует маршруты /users
func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	router.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
	router.HandleFunc("/users/{id:[0-9]+}/accounts", h.GetUserAccounts).Methods(http.MethodGet)
	router.HandleFunc("/users/{id:[0-9]+}/achievements", h.GetAchievements).Methods(http.MethodGet)
	router.HandleFunc("/users/{id:[0-9]+}/referrals", h.Refer).Methods(http.MethodPost)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WithError(err).Warn("Не удалось декодировать запрос на создание пользователя")
		writeError(w, h.logger, err, nil)
		return
	}

	user, err := h.accountService.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	user, err := h.accountService.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, user)
}

func (h *UserHandler) GetUserAccounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	accounts, err := h.accountService.ListUserAccounts(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if accounts == nil {
		accounts = []model.BankAccount{}
	}
	writeJSON(w, h.logger, http.StatusOK, accounts)
}

func (h *UserHandler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	achievements, err := h.achievementService.GetUserAchievements(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if achievements == nil {
		achievements = []model.UserAchievement{}
	}
	writeJSON(w, h.logger, http.StatusOK, achievements)
}

// Refer: пользователь {id} пригласил referred_user_id
func (h *UserHandler) Refer(w http.ResponseWriter, r *http.Request) {
	referrerID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	var req model.ReferralRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	if err := h.accountService.ReferUser(r.Context(), referrerID, req.ReferredUserID); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
