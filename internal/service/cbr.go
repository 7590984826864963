package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
)

const DefaultCBRDailyURL = "https://www.cbr.ru/scripts/XML_daily.asp"

type CBRClient struct {
	httpClient *http.Client
	url        string
	logger     *logrus.Logger
}

// NewCBRClient создаёт клиент ежедневных курсов ЦБ РФ
func NewCBRClient(url string, logger *logrus.Logger) *CBRClient {
	if url == "" {
		url = DefaultCBRDailyURL
	}
	return &CBRClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		url:    url,
		logger: logger,
	}
}

// fetch загружает XML с курсами
func (c *CBRClient) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка при выполнении HTTP-запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ЦБ РФ вернул статус %d", resp.StatusCode)
	}

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении ответа: %w", err)
	}
	return rawBody, nil
}

// parseDailyRates разбирает ValCurs. Value - рублей за Nominal единиц валюты,
// десятичный разделитель - запятая. Ответ приходит в windows-1251.
func parseDailyRates(rawBody []byte) (*RateTable, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(label) {
		case "windows-1251", "cp1251":
			return charmap.Windows1251.NewDecoder().Reader(input), nil
		case "utf-8", "utf8":
			return input, nil
		}
		return nil, fmt.Errorf("неподдерживаемая кодировка %s", label)
	}
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return nil, fmt.Errorf("ошибка при разборе XML: %w", err)
	}

	valutes := doc.FindElements("//ValCurs/Valute")
	if len(valutes) == 0 {
		return nil, errors.New("курсы валют не найдены в ответе")
	}

	units := make(map[string]decimal.Decimal, len(valutes))
	for _, v := range valutes {
		code := v.FindElement("./CharCode")
		nominal := v.FindElement("./Nominal")
		value := v.FindElement("./Value")
		if code == nil || nominal == nil || value == nil {
			continue
		}

		n, err := decimal.NewFromString(strings.TrimSpace(nominal.Text()))
		if err != nil {
			return nil, fmt.Errorf("ошибка при разборе номинала %s: %w", code.Text(), err)
		}
		rub, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(value.Text()), ",", "."))
		if err != nil {
			return nil, fmt.Errorf("ошибка при разборе курса %s: %w", code.Text(), err)
		}
		if !rub.IsPositive() || !n.IsPositive() {
			continue
		}
		// единиц валюты за один рубль
		units[strings.TrimSpace(code.Text())] = n.Div(rub)
	}

	return NewRateTable("RUB", units), nil
}

// GetDailyRates получает актуальные курсы валют ЦБ РФ
func (c *CBRClient) GetDailyRates(ctx context.Context) (*RateTable, error) {
	c.logger.Info("Запрос курсов валют ЦБ РФ...")
	rawBody, err := c.fetch(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Ошибка при отправке запроса в ЦБ РФ")
		return nil, err
	}

	table, err := parseDailyRates(rawBody)
	if err != nil {
		c.logger.WithError(err).Error("Ошибка при разборе XML-ответа от ЦБ РФ")
		return nil, err
	}

	c.logger.WithField("currencies", table.Len()).Info("Курсы валют успешно получены")
	return table, nil
}

// CBRRates - провайдер курсов ЦБ РФ. До первой успешной загрузки
// работает по резервной таблице.
type CBRRates struct {
	client *CBRClient
	mu     sync.RWMutex
	table  *RateTable
	logger *logrus.Logger
}

func NewCBRRates(client *CBRClient, fallback *RateTable, logger *logrus.Logger) *CBRRates {
	if fallback == nil {
		fallback = DefaultRateTable()
	}
	return &CBRRates{client: client, table: fallback, logger: logger}
}

// Refresh заменяет таблицу целиком. При ошибке остается прежняя.
func (r *CBRRates) Refresh(ctx context.Context) error {
	table, err := r.client.GetDailyRates(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
	return nil
}

func (r *CBRRates) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	r.mu.RLock()
	table := r.table
	r.mu.RUnlock()
	return table.Convert(amount, from, to)
}
