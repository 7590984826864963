package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/service"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error       string              `json:"error"`
	Kind        model.ErrorKind     `json:"kind,omitempty"`
	Reason      model.FailureReason `json:"reason,omitempty"`
	Transaction *model.Transaction  `json:"transaction,omitempty"`
}

// statusFor сопоставляет доменную ошибку HTTP-статусу
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case model.KindAccountState, model.KindConflict:
		return http.StatusConflict
	case model.KindContention:
		return http.StatusServiceUnavailable
	case model.KindInvariant:
		return http.StatusForbidden
	}
	if errors.Is(err, service.ErrSweepInProgress) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, logger *logrus.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Ошибка кодирования ответа")
	}
}

// writeError пишет ошибку в JSON. Если операция была записана как failed,
// транзакция возвращается вместе с ошибкой.
func writeError(w http.ResponseWriter, logger *logrus.Logger, err error, txn *model.Transaction) {
	status := statusFor(err)
	resp := errorResponse{
		Error:       err.Error(),
		Kind:        model.KindOf(err),
		Reason:      model.ReasonOf(err),
		Transaction: txn,
	}
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Внутренняя ошибка при обработке запроса")
		resp.Error = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, logger, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.NewError(model.KindValidation, "", "invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewError(model.KindValidation, "", "invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, model.NewError(model.KindValidation, "", "invalid %s", name)
	}
	return v, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, model.NewError(model.KindValidation, "", "invalid %s, use YYYY-MM-DD", name)
	}
	return t, nil
}
