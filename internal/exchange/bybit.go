package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KindBybit - USDT perpetual на Bybit (REST API v5)
const KindBybit = "bybit"

const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitRecvWindow = "5000"
	bybitCategory   = "linear"
	bybitSettleCoin = "USDT"
	bybitMaxDepth   = 500
)

func init() {
	Register(KindBybit, func(cfg VenueConfig) (Venue, error) { return NewBybit(cfg) })
}

// Bybit реализует Venue для фьючерсов Bybit.
// Сессия = проверенные ключи + загруженные лимиты по символам из Markets.
type Bybit struct {
	name      string
	apiKey    string
	secretKey string
	baseURL   string
	markets   map[string]string
	takerFee  float64

	httpClient *http.Client

	mu        sync.RWMutex
	connected bool
	limits    map[string]*Limits

	now func() time.Time
}

// NewBybit создает адаптер по настройкам биржи
func NewBybit(cfg VenueConfig) (*Bybit, error) {
	if cfg.APIKey == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("bybit venue %s: api_key and secret are required", cfg.Name)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = bybitBaseURL
	}

	markets := make(map[string]string, len(cfg.Markets))
	for coin, sym := range cfg.Markets {
		markets[strings.ToUpper(coin)] = strings.ToUpper(sym)
	}

	return &Bybit{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.Secret,
		baseURL:    base,
		markets:    markets,
		takerFee:   cfg.TakerFee,
		httpClient: newVenueClient(cfg),
		limits:     make(map[string]*Limits),
		now:        time.Now,
	}, nil
}

// CloseIdleConnections освобождает пул соединений при остановке
func (b *Bybit) CloseIdleConnections() {
	b.httpClient.CloseIdleConnections()
}

// sign создает подпись для запроса к Bybit API v5
func (b *Bybit) sign(timestamp, payload string) string {
	message := timestamp + b.apiKey + bybitRecvWindow + payload
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// bybitResponse - общая обёртка ответа v5
type bybitResponse struct {
	RetCode int                 `json:"retCode"`
	RetMsg  string              `json:"retMsg"`
	Result  jsoniter.RawMessage `json:"result"`
	Time    int64               `json:"time"`
}

// doRequest выполняет запрос и раскладывает result в out.
// Ненулевой retCode возвращается как ExchangeError с кодом биржи.
func (b *Bybit) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool, out interface{}) (*bybitResponse, error) {
	var payload, reqURL string

	if method == http.MethodGet {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		payload = query.Encode()
		reqURL = b.baseURL + endpoint
		if payload != "" {
			reqURL += "?" + payload
		}
	} else {
		reqURL = b.baseURL + endpoint
		if len(params) > 0 {
			body, err := json.Marshal(params)
			if err != nil {
				return nil, b.wrap("encode", err)
			}
			payload = string(body)
		}
	}

	var body io.Reader
	if method != http.MethodGet {
		body = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, b.wrap("request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-SIGN", b.sign(timestamp, payload))
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, b.wrap("transport", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, b.wrap("transport", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ExchangeError{
			Exchange: b.name,
			Code:     "http_" + strconv.Itoa(resp.StatusCode),
			Message:  strings.TrimSpace(string(raw)),
		}
	}

	var base bybitResponse
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, b.wrap("decode", err)
	}
	if base.RetCode != 0 {
		return nil, &ExchangeError{
			Exchange: b.name,
			Code:     strconv.Itoa(base.RetCode),
			Message:  base.RetMsg,
		}
	}

	if out != nil && len(base.Result) > 0 {
		if err := json.Unmarshal(base.Result, out); err != nil {
			return nil, b.wrap("decode", err)
		}
	}
	return &base, nil
}

func (b *Bybit) wrap(code string, err error) error {
	return NewExchangeError(b.name, code, err)
}

func (b *Bybit) session() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		return b.wrap("session", ErrNotConnected)
	}
	return nil
}

func (b *Bybit) GetName() string { return b.name }

// Connect проверяет ключи запросом баланса и загружает лимиты символов
func (b *Bybit) Connect(ctx context.Context) error {
	if _, err := b.walletBalance(ctx); err != nil {
		return fmt.Errorf("bybit connect: %w", err)
	}

	limits := make(map[string]*Limits, len(b.markets))
	for _, symbol := range b.markets {
		l, err := b.fetchLimits(ctx, symbol)
		if err != nil {
			return fmt.Errorf("bybit connect: %w", err)
		}
		limits[symbol] = l
	}

	b.mu.Lock()
	b.limits = limits
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *Bybit) fetchLimits(ctx context.Context, symbol string) (*Limits, error) {
	params := map[string]string{
		"category": bybitCategory,
		"symbol":   symbol,
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				QtyStep     string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	}

	if _, err := b.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", params, false, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, b.wrap("unknown_symbol", fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol))
	}

	info := result.List[0]
	return &Limits{
		Symbol:      symbol,
		MinOrderQty: parseFloat(info.LotSizeFilter.MinOrderQty),
		QtyStep:     parseFloat(info.LotSizeFilter.QtyStep),
		PriceStep:   parseFloat(info.PriceFilter.TickSize),
	}, nil
}

type bybitWallet struct {
	Equity    float64
	Available float64
}

func (b *Bybit) walletBalance(ctx context.Context) (*bybitWallet, error) {
	params := map[string]string{
		"accountType": "UNIFIED",
		"coin":        bybitSettleCoin,
	}

	var result struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
		} `json:"list"`
	}

	if _, err := b.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, true, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return &bybitWallet{}, nil
	}
	return &bybitWallet{
		Equity:    parseFloat(result.List[0].TotalEquity),
		Available: parseFloat(result.List[0].TotalAvailableBalance),
	}, nil
}

// GetPositions возвращает позиции по символам из Markets.
// positionValue от биржи уходит как авторитетный размер в USD.
func (b *Bybit) GetPositions(ctx context.Context) (map[string]*Position, error) {
	if err := b.session(); err != nil {
		return nil, err
	}

	params := map[string]string{
		"category":   bybitCategory,
		"settleCoin": bybitSettleCoin,
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			PositionValue string `json:"positionValue"`
		} `json:"list"`
	}

	if _, err := b.doRequest(ctx, http.MethodGet, "/v5/position/list", params, true, &result); err != nil {
		return nil, err
	}

	tracked := make(map[string]bool, len(b.markets))
	for _, sym := range b.markets {
		tracked[sym] = true
	}

	positions := make(map[string]*Position)
	for _, p := range result.List {
		size := parseFloat(p.Size)
		if size == 0 || !tracked[p.Symbol] {
			continue
		}

		side := SideLong
		if p.Side == "Sell" {
			side = SideShort
		}

		pos := &Position{
			Symbol:     p.Symbol,
			Side:       side,
			Size:       size,
			EntryPrice: parseFloat(p.AvgPrice),
		}
		if v := parseFloat(p.PositionValue); v > 0 {
			pos.SizeUSD = v
			pos.HasSizeUSD = true
		}
		positions[p.Symbol] = pos
	}

	return positions, nil
}

func (b *Bybit) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if err := b.session(); err != nil {
		return nil, err
	}
	if depth <= 0 || depth > bybitMaxDepth {
		depth = bybitMaxDepth
	}

	params := map[string]string{
		"category": bybitCategory,
		"symbol":   symbol,
		"limit":    strconv.Itoa(depth),
	}

	var result struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
		Ts     int64      `json:"ts"`
	}

	if _, err := b.doRequest(ctx, http.MethodGet, "/v5/market/orderbook", params, false, &result); err != nil {
		return nil, err
	}

	book := &OrderBook{
		Symbol:    symbol,
		Bids:      parseLevels(result.Bids),
		Asks:      parseLevels(result.Asks),
		Timestamp: time.UnixMilli(result.Ts),
	}

	// bids по убыванию, asks по возрастанию
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })

	return book, nil
}

func parseLevels(raw [][]string) []PriceLevel {
	levels := make([]PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		levels = append(levels, PriceLevel{Price: parseFloat(lvl[0]), Volume: parseFloat(lvl[1])})
	}
	return levels
}

func (b *Bybit) GetBalance(ctx context.Context) (float64, error) {
	if err := b.session(); err != nil {
		return 0, err
	}
	w, err := b.walletBalance(ctx)
	if err != nil {
		return 0, err
	}
	return w.Equity, nil
}

// GetAvailableBalance - маржа единого аккаунта общая для обеих сторон
func (b *Bybit) GetAvailableBalance(ctx context.Context, side string) (float64, error) {
	if err := b.session(); err != nil {
		return 0, err
	}
	w, err := b.walletBalance(ctx)
	if err != nil {
		return 0, err
	}
	return w.Available, nil
}

func (b *Bybit) CancelAllOrders(ctx context.Context) error {
	if err := b.session(); err != nil {
		return err
	}
	params := map[string]string{
		"category":   bybitCategory,
		"settleCoin": bybitSettleCoin,
	}
	_, err := b.doRequest(ctx, http.MethodPost, "/v5/order/cancel-all", params, true, nil)
	return err
}

// CreateOrder размещает лимитный ордер. GTT на Bybit нет, такие ордера уходят как GTC.
func (b *Bybit) CreateOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if err := b.session(); err != nil {
		return nil, err
	}

	side := "Buy"
	if req.Side == SideSell {
		side = "Sell"
	}

	params := map[string]string{
		"category":    bybitCategory,
		"symbol":      req.Symbol,
		"side":        side,
		"orderType":   "Limit",
		"qty":         strconv.FormatFloat(req.Size, 'f', -1, 64),
		"price":       strconv.FormatFloat(req.Price, 'f', -1, 64),
		"timeInForce": "GTC",
	}
	if req.ClientID != "" {
		params["orderLinkId"] = req.ClientID
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}

	base, err := b.doRequest(ctx, http.MethodPost, "/v5/order/create", params, true, &result)
	if err != nil {
		return nil, err
	}
	if result.OrderID == "" {
		return nil, b.wrap("no_order_id", ErrNoOrderID)
	}

	ts := b.now()
	if base.Time > 0 {
		ts = time.UnixMilli(base.Time)
	}
	return &OrderAck{
		ExchangeOrderID: result.OrderID,
		Timestamp:       ts,
		Price:           req.Price,
	}, nil
}

func (b *Bybit) Markets() map[string]string {
	out := make(map[string]string, len(b.markets))
	for coin, sym := range b.markets {
		out[coin] = sym
	}
	return out
}

func (b *Bybit) GetLimits(symbol string) (*Limits, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.limits[symbol]
	if !ok {
		return nil, b.wrap("unknown_symbol", fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol))
	}
	c := *l
	return &c, nil
}

func (b *Bybit) TakerFee() float64 { return b.takerFee }

// Close завершает сессию. Соединения пула остаются для следующей итерации.
func (b *Bybit) Close() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
