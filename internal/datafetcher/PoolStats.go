package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/poolboard/poolboard/internal/address"
	"github.com/poolboard/poolboard/internal/logger"
	"github.com/poolboard/poolboard/internal/types"
	"github.com/rs/zerolog"
)

var ErrAPIResponseInvalid = errors.New("API response validation failed")

// statsEntry is one element of data.lp_list. Fields stay raw because the
// endpoint renders numbers both as JSON numbers and as strings.
type statsEntry map[string]json.RawMessage

type statsResponse struct {
	Data *struct {
		LPList []statsEntry `json:"lp_list"`
	} `json:"data"`
}

// StatsFetcher retrieves off-chain pool statistics in a single call.
type StatsFetcher struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewStatsFetcher(url string, timeout time.Duration) *StatsFetcher {
	return &StatsFetcher{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.GetForComponent("stats_retriever"),
	}
}

// FetchAllStats returns statistics keyed by normalized pool address.
//
// A payload without data or data.lp_list is an empty result. Entries without
// an address are dropped, and absent or unparsable numeric fields read as 0.
// Transport failures, non-200 replies and bodies that are not JSON are
// returned as *types.NetworkError; the latter also match types.ErrMalformedData.
func (s *StatsFetcher) FetchAllStats(ctx context.Context) (types.StatsMap, error) {
	s.log.Debug().Str("url", s.url).Msg("Making API request for pool statistics")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create statistics request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Error().Err(err).Str("url", s.url).Msg("HTTP request failed for pool statistics")
		return nil, types.NewNetworkError("fetch stats", "", err)
	}
	defer resp.Body.Close()

	if err := validateAPIResponse(resp); err != nil {
		s.log.Error().Err(err).Int("statusCode", resp.StatusCode).Msg("API response validation failed")
		return nil, types.NewNetworkError("fetch stats", "", errors.Join(ErrAPIResponseInvalid, err))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewNetworkError("fetch stats", "", fmt.Errorf("failed to read statistics response: %w", err))
	}

	var parsed statsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		s.log.Error().Err(err).Int("bodyLength", len(body)).Msg("Failed to parse statistics JSON")
		return nil, types.NewNetworkError("fetch stats", "", errors.Join(types.ErrMalformedData, err))
	}

	stats := make(types.StatsMap)
	if parsed.Data == nil || parsed.Data.LPList == nil {
		s.log.Warn().Msg("Statistics payload has no lp_list, treating as empty")
		return stats, nil
	}

	dropped := 0
	for _, entry := range parsed.Data.LPList {
		addr := entry.str("address")
		if addr == "" {
			dropped++
			continue
		}
		stats[address.Normalize(addr)] = types.StatsRecord{
			LiquidityUSD: entry.number("depth"),
			Volume24hUSD: entry.number("volume_24h"),
			Fees24hUSD:   entry.number("fee_24h"),
			APR24h:       entry.number("apr_24h"),
		}
	}

	s.log.Info().
		Int("entries", len(parsed.Data.LPList)).
		Int("keyed", len(stats)).
		Int("dropped", dropped).
		Msg("Successfully fetched pool statistics")

	return stats, nil
}

func (e statsEntry) str(key string) string {
	var v string
	if raw, ok := e[key]; ok && json.Unmarshal(raw, &v) == nil {
		return strings.TrimSpace(v)
	}
	return ""
}

// number reads a numeric field that may be a number or a numeric string.
// Anything else, including NaN and infinities, is 0.
func (e statsEntry) number(key string) float64 {
	raw, ok := e[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var str string
		if json.Unmarshal(raw, &str) != nil {
			return 0
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(str), 64); err != nil {
			return 0
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// validateAPIResponse validates the HTTP response from the statistics endpoint
func validateAPIResponse(resp *http.Response) error {
	if resp == nil {
		return errors.New("HTTP response is nil")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned non-200 status: %d", resp.StatusCode)
	}
	if resp.Body == nil {
		return errors.New("response body is nil")
	}
	return nil
}
