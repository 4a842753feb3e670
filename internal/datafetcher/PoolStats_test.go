package datafetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poolboard/poolboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statsServer(t *testing.T, status int, body string) *StatsFetcher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewStatsFetcher(srv.URL, 0)
}

func TestFetchAllStats(t *testing.T) {
	t.Run("KeysByNormalizedAddress", func(t *testing.T) {
		f := statsServer(t, http.StatusOK, `{"code":200,"data":{"lp_list":[
			{"address":"0xAA","depth":"1000","volume_24h":500,"fee_24h":"10","apr_24h":"12.5"},
			{"address":"bb","depth":"2.5"},
			{"depth":"99"},
			{"address":"","depth":"99"},
			{"address":"0xcc","depth":"n/a","volume_24h":null,"fee_24h":true}
		]}}`)

		stats, err := f.FetchAllStats(context.Background())
		require.NoError(t, err)
		require.Len(t, stats, 3)

		assert.Equal(t, types.StatsRecord{LiquidityUSD: 1000, Volume24hUSD: 500, Fees24hUSD: 10, APR24h: 12.5}, stats["0xaa"])
		assert.Equal(t, types.StatsRecord{LiquidityUSD: 2.5}, stats["0xbb"])
		assert.Equal(t, types.StatsRecord{}, stats["0xcc"])
	})

	t.Run("MissingListIsEmpty", func(t *testing.T) {
		for _, body := range []string{`{}`, `{"data":{}}`, `{"data":null}`, `{"data":{"lp_list":null}}`} {
			stats, err := statsServer(t, http.StatusOK, body).FetchAllStats(context.Background())
			require.NoError(t, err, body)
			assert.Empty(t, stats, body)
		}
	})

	t.Run("NonJSONIsMalformed", func(t *testing.T) {
		_, err := statsServer(t, http.StatusOK, `<html>maintenance</html>`).FetchAllStats(context.Background())
		assert.ErrorIs(t, err, types.ErrNetwork)
		assert.ErrorIs(t, err, types.ErrMalformedData)
	})

	t.Run("Non200", func(t *testing.T) {
		_, err := statsServer(t, http.StatusInternalServerError, `{}`).FetchAllStats(context.Background())
		assert.ErrorIs(t, err, types.ErrNetwork)
		assert.ErrorIs(t, err, ErrAPIResponseInvalid)
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := NewStatsFetcher(url, 0).FetchAllStats(context.Background())
		assert.ErrorIs(t, err, types.ErrNetwork)
	})
}
