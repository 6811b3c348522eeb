package broker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HTTPClient talks to the brokerage's REST API. Every order-path call first
// passes the rate limiter, so the reconciler's state machine stays free of
// throttling logic. Calls are not retried.
type HTTPClient struct {
	Token   string
	BaseURL string
	Client  *http.Client

	limiter *rateLimiter
}

// NewHTTPClient builds a client with a fixed minimum interval between
// submissions. interval <= 0 disables throttling.
func NewHTTPClient(token, baseURL string, interval time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://broker.example.com"
	}
	return &HTTPClient{
		Token:   token,
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: newRateLimiter(interval),
	}
}

// rateLimiter enforces a fixed delay between consecutive calls. A token
// bucket would allow bursts the brokerage rejects, so the simpler fixed
// spacing is used deliberately.
type rateLimiter struct {
	mu    sync.Mutex
	every time.Duration
	last  time.Time
}

func newRateLimiter(every time.Duration) *rateLimiter {
	return &rateLimiter{every: every}
}

func (l *rateLimiter) wait() {
	if l.every <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if sleep := l.every - time.Since(l.last); sleep > 0 {
		time.Sleep(sleep)
	}
	l.last = time.Now()
}

func (c *HTTPClient) GroupList() ([]Group, error) {
	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := c.get("/v1/groups", nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

func (c *HTTPClient) Performance(groupID string) (*Performance, error) {
	var out Performance
	if err := c.get("/v1/performance", url.Values{"gid": {groupID}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Quote(code string) (decimal.Decimal, error) {
	var out struct {
		Current decimal.Decimal `json:"current"`
	}
	if err := c.get("/v1/quote", url.Values{"code": {NormalizeCode(code)}}, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Current, nil
}

func (c *HTTPClient) AddTransaction(groupID, code string, shares int64, price decimal.Decimal) (Order, error) {
	c.limiter.wait()
	order := Order{
		ID:      uuid.New(),
		GroupID: groupID,
		Code:    NormalizeCode(code),
		Shares:  shares,
		Price:   price,
		At:      time.Now(),
	}
	form := url.Values{
		"gid":    {groupID},
		"code":   {order.Code},
		"shares": {strconv.FormatInt(shares, 10)},
		"price":  {price.String()},
		"ref":    {order.ID.String()},
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/v1/transaction", strings.NewReader(form.Encode()))
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := c.Client.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("submit transaction %s: %w", order.Code, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Order{}, fmt.Errorf("submit transaction %s: broker returned %s", order.Code, resp.Status)
	}
	return order, nil
}

func (c *HTTPClient) get(path string, query url.Values, dst any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("broker GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("broker GET %s: decode: %w", path, err)
	}
	return nil
}
