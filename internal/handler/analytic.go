package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/service"
)

type AnalyticsHandler struct {
	analyticService *service.AnalyticService
	logger          *logrus.Logger
}

func NewAnalyticsHandler(analyticService *service.AnalyticService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticService: analyticService,
		logger:          logger,
	}
}

func (h *AnalyticsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts/{id:[0-9]+}/stats", h.GetAccountStats).Methods(http.MethodGet)
}

// GetAccountStats возвращает статистику по поступлениям/списаниям счета
func (h *AnalyticsHandler) GetAccountStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	startDate, endDate, err := h.parseDateRange(r)
	if err != nil {
		h.logger.WithError(err).Warn("Неверные параметры даты")
		writeError(w, h.logger, err, nil)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"account_id": id,
		"start_date": startDate.Format(dateLayout),
		"end_date":   endDate.Format(dateLayout),
	}).Info("Запрос статистики по счету")

	stats, err := h.analyticService.GetAccountStats(r.Context(), id, startDate, endDate)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

// parseDateRange парсит start/end, по умолчанию последний месяц. end включительно.
func (h *AnalyticsHandler) parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	startDate := today.AddDate(0, -1, 0)
	endDate := today

	start, err := queryDate(r, "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.IsZero() {
		startDate = start
	}

	end, err := queryDate(r, "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.IsZero() {
		endDate = end
	}

	// Меняем местами, если перепутаны
	if startDate.After(endDate) {
		startDate, endDate = endDate, startDate
	}
	return startDate, endDate.AddDate(0, 0, 1), nil
}
