// Package myquran fetches monthly prayer schedules from the myQuran API.
package myquran

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.myquran.com/v3"

type monthResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID     string               `json:"id"`
		Kabko  string               `json:"kabko"`
		Prov   string               `json:"prov"`
		Jadwal map[string]dayRecord `json:"jadwal"`
	} `json:"data"`
}

type dayRecord struct {
	Tanggal string `json:"tanggal"`
	Imsak   string `json:"imsak"`
	Subuh   string `json:"subuh"`
	Terbit  string `json:"terbit"`
	Dhuha   string `json:"dhuha"`
	Dzuhur  string `json:"dzuhur"`
	Ashar   string `json:"ashar"`
	Maghrib string `json:"maghrib"`
	Isya    string `json:"isya"`
}

// Client implements ports.ScheduleProvider. A month is fetched once per
// location and kept in memory.
type Client struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string

	months map[string]map[string]domain.DailySchedule // location|YYYY-MM -> date -> schedule
	mu     sync.Mutex
}

// NewClient creates a client. httpClient may be nil.
func NewClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		logger:  logger,
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		months:  make(map[string]map[string]domain.DailySchedule),
	}
}

// Daily returns the schedule for date at locationID.
func (c *Client) Daily(ctx context.Context, locationID string, date time.Time) (domain.DailySchedule, error) {
	if locationID == "" {
		return domain.DailySchedule{}, domain.NewValidationError("location_id", locationID, "required")
	}

	month := date.Format("2006-01")
	day := date.Format(domain.DateLayout)
	cacheKey := locationID + "|" + month

	c.mu.Lock()
	days, ok := c.months[cacheKey]
	c.mu.Unlock()

	if !ok {
		fetched, err := c.fetchMonth(ctx, locationID, month)
		if err != nil {
			return domain.DailySchedule{}, err
		}
		c.mu.Lock()
		c.months[cacheKey] = fetched
		c.mu.Unlock()
		days = fetched
	}

	sched, ok := days[day]
	if !ok {
		return domain.DailySchedule{}, fmt.Errorf("%s at %s: %w", day, locationID, domain.ErrScheduleUnavailable)
	}
	return sched, nil
}

func (c *Client) fetchMonth(ctx context.Context, locationID, month string) (map[string]domain.DailySchedule, error) {
	url := fmt.Sprintf("%s/sholat/jadwal/%s/%s", c.baseURL, locationID, month)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build schedule request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch schedule: status %d: %w", resp.StatusCode, domain.ErrScheduleUnavailable)
	}

	var body monthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if !body.Status || len(body.Data.Jadwal) == 0 {
		return nil, fmt.Errorf("schedule response invalid (%s): %w", body.Message, domain.ErrScheduleUnavailable)
	}

	days := make(map[string]domain.DailySchedule, len(body.Data.Jadwal))
	for date, rec := range body.Data.Jadwal {
		sched := domain.DailySchedule{
			Date:     date,
			Imsak:    rec.Imsak,
			Subuh:    rec.Subuh,
			Terbit:   rec.Terbit,
			Dhuha:    rec.Dhuha,
			Dzuhur:   rec.Dzuhur,
			Ashar:    rec.Ashar,
			Maghrib:  rec.Maghrib,
			Isya:     rec.Isya,
			City:     body.Data.Kabko,
			Province: body.Data.Prov,
		}
		if err := sched.Validate(); err != nil {
			c.logger.Warn("skipping malformed schedule day", slog.String("date", date), slog.Any("error", err))
			continue
		}
		days[date] = sched
	}

	c.logger.Info("prayer schedule fetched",
		slog.String("location", locationID),
		slog.String("month", month),
		slog.String("city", body.Data.Kabko),
		slog.Int("days", len(days)))

	return days, nil
}

var _ ports.ScheduleProvider = (*Client)(nil)
