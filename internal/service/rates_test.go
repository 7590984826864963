package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"bank-ledger/internal/model"
)

func TestRateTableConvert(t *testing.T) {
	table := DefaultRateTable()

	testCases := []struct {
		name     string
		amount   string
		from, to string
		want     string
	}{
		{name: "usd to rub", amount: "10", from: "USD", to: "RUB", want: "750"},
		{name: "rub to usd", amount: "750", from: "RUB", to: "USD", want: "10"},
		{name: "eur to gbp", amount: "100", from: "EUR", to: "GBP", want: "85.88"},
		{name: "same currency rounds", amount: "1.005", from: "usd", to: "USD", want: "1.01"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := table.Convert(dec(tc.amount), tc.from, tc.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tc.want)), "got %s, want %s", got, tc.want)
		})
	}

	_, err := table.Convert(dec("1"), "USD", "JPY")
	assert.Equal(t, model.ReasonCurrencyUnavailable, model.ReasonOf(err))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func cbrXML(t *testing.T) []byte {
	t.Helper()
	name, err := charmap.Windows1251.NewEncoder().String("Доллар США")
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="windows-1251"?>
<ValCurs Date="01.03.2024" name="Foreign Currency Market">
	<Valute ID="R01235">
		<NumCode>840</NumCode>
		<CharCode>USD</CharCode>
		<Nominal>1</Nominal>
		<Name>%s</Name>
		<Value>80,0000</Value>
	</Valute>
	<Valute ID="R01820">
		<NumCode>392</NumCode>
		<CharCode>JPY</CharCode>
		<Nominal>100</Nominal>
		<Name>Japanese yen</Name>
		<Value>50,0000</Value>
	</Valute>
</ValCurs>`, name))
}

func TestParseDailyRates(t *testing.T) {
	table, err := parseDailyRates(cbrXML(t))
	require.NoError(t, err)

	assert.Equal(t, "RUB", table.Base)
	assert.Equal(t, 3, table.Len())

	got, err := table.Convert(dec("100"), "USD", "RUB")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("8000")))

	got, err = table.Convert(dec("100"), "USD", "JPY")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("16000")))

	_, err = parseDailyRates([]byte(`<?xml version="1.0"?><ValCurs/>`))
	assert.Error(t, err)
}

func TestCBRRatesRefresh(t *testing.T) {
	logger, _ := test.NewNullLogger()
	body := cbrXML(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml; charset=windows-1251")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	rates := NewCBRRates(NewCBRClient(server.URL, logger), nil, logger)
	ctx := context.Background()

	// до загрузки действует резервная таблица
	got, err := rates.Convert(ctx, dec("1"), "USD", "RUB")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("75")))

	require.NoError(t, rates.Refresh(ctx))
	got, err = rates.Convert(ctx, dec("1"), "USD", "RUB")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("80")))
}

func TestCBRRatesRefreshKeepsTableOnError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rates := NewCBRRates(NewCBRClient(server.URL, logger), nil, logger)
	ctx := context.Background()

	assert.Error(t, rates.Refresh(ctx))
	got, err := rates.Convert(ctx, dec("1"), "USD", "RUB")
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("75")))
}
