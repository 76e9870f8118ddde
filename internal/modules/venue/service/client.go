package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Client — REST-клиент терминального моста. Мост сидит рядом с торговым
// терминалом и транслирует наши вызовы в его API; отдельно держим
// websocket-фид котировок, чтобы GetTick не ходил по REST на каждый чих.
type Client struct {
	cfg *config.Config

	http     *http.Client
	wsDialer *websocket.Dialer
	baseURL  string
	token    string

	mu    sync.RWMutex
	ticks map[string]models.Tick // последний bid/ask по символу
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Bridge.Timeout},
		wsDialer: &websocket.Dialer{},
		baseURL:  "http://" + cfg.Bridge.Addr,
		token:    cfg.Bridge.Token,
		ticks:    make(map[string]models.Tick),
	}
}

// EnsureConnected — liveness-проверка моста. Одна попытка, без ретраев:
// политика повторов лежит на владеющих циклах.
func (c *Client) EnsureConnected(ctx context.Context) error {
	var resp struct {
		Connected bool   `json:"connected"`
		Account   string `json:"account"`
	}
	if err := c.get(ctx, "/api/v1/ping", nil, &resp); err != nil {
		return err
	}
	if !resp.Connected {
		return fmt.Errorf("%w: terminal not logged in", ErrUnavailable)
	}
	return nil
}

type apiEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("X-Bridge-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTransport(err) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, string(b))
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if env.Code != "0" {
		return fmt.Errorf("bridge error %s: %s", env.Code, env.Msg)
	}
	if out != nil {
		if err := sonic.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

func isTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
