package kraken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/util"

	apphttp "SpotAgent/pkg/http"

	"github.com/google/uuid"
)

// quotePlaces is the precision used for quote-denominated volumes.
const quotePlaces = 2

const orderPolls = 8

type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxID []string `json:"txid"`
}

type orderInfo struct {
	Status  string  `json:"status"`
	Reason  string  `json:"reason"`
	VolExec string  `json:"vol_exec"`
	Cost    string  `json:"cost"`
	Fee     string  `json:"fee"`
	Price   string  `json:"price"`
	CloseTm float64 `json:"closetm"`
}

// CreateMarketBuyByCost spends quoteAmount of quote currency. When the venue
// refuses quote-denominated volume, quantity is estimated from the ticker
// and CreateMarketBuy is used instead.
func (c *Client) CreateMarketBuyByCost(ctx context.Context, symbol string, quoteAmount float64) (models.Order, error) {
	if quoteAmount <= 0 {
		return models.Order{}, fmt.Errorf("%w: zero cost", repository.ErrInvalidOrder)
	}
	m, err := c.market(symbol)
	if err != nil {
		return models.Order{}, err
	}
	if c.buyByCost {
		vol := util.FormatAmount(util.TruncateAmount(quoteAmount, quotePlaces), quotePlaces)
		o, err := c.addMarket(ctx, m, models.SideBuy, vol, true)
		if err == nil || !errors.Is(err, repository.ErrInvalidOrder) {
			return o, err
		}
		c.l.Warn("buy by cost refused, falling back to quantity", logger.String("symbol", m.Symbol), logger.Error(err))
	}
	t, err := c.FetchTicker(ctx, m.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	if t.Last <= 0 {
		return models.Order{}, fmt.Errorf("%w: missing price for %s", repository.ErrInvalidOrder, m.Symbol)
	}
	return c.CreateMarketBuy(ctx, m.Symbol, quoteAmount/t.Last)
}

func (c *Client) CreateMarketBuy(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	m, err := c.market(symbol)
	if err != nil {
		return models.Order{}, err
	}
	qty = util.TruncateAmount(qty, m.AmountPrecision)
	if qty <= 0 || (m.MinAmount > 0 && qty < m.MinAmount) {
		return models.Order{}, fmt.Errorf("%w: buy qty %.8f below minimum %.8f", repository.ErrInvalidOrder, qty, m.MinAmount)
	}
	return c.addMarket(ctx, m, models.SideBuy, util.FormatAmount(qty, m.AmountPrecision), false)
}

// CreateMarketSell rounds qty down to the lot precision and refuses amounts
// below the market minimum with ErrMinAmount.
func (c *Client) CreateMarketSell(ctx context.Context, symbol string, qty float64) (models.Order, error) {
	m, err := c.market(symbol)
	if err != nil {
		return models.Order{}, err
	}
	qty = util.TruncateAmount(qty, m.AmountPrecision)
	if qty <= 0 || (m.MinAmount > 0 && qty < m.MinAmount) {
		return models.Order{}, fmt.Errorf("%w: sell qty %.8f below minimum %.8f", repository.ErrMinAmount, qty, m.MinAmount)
	}
	return c.addMarket(ctx, m, models.SideSell, util.FormatAmount(qty, m.AmountPrecision), false)
}

// addMarket places one market order. The client order id comes from ctx when
// the caller pinned one, so a repeated attempt carries the same id.
func (c *Client) addMarket(ctx context.Context, m models.Market, side models.Side, volume string, viqc bool) (models.Order, error) {
	clientID := repository.ClientOrderID(ctx)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	params := url.Values{
		"ordertype": {"market"},
		"type":      {strings.ToLower(string(side))},
		"pair":      {m.ID},
		"volume":    {volume},
		"cl_ord_id": {clientID},
	}
	if viqc {
		params.Set("oflags", "viqc")
	}
	var res addOrderResult
	if err := c.private(ctx, "AddOrder", params, &res); err != nil {
		if placementUnknown(err) {
			c.l.Error("order outcome unknown", logger.String("symbol", m.Symbol), logger.String("side", string(side)),
				logger.String("cl_ord_id", clientID), logger.Error(err))
			return models.Order{ClientID: clientID, Symbol: m.Symbol, Side: side},
				fmt.Errorf("kraken AddOrder %s cl_ord_id %s: %v: %w", m.Symbol, clientID, err, repository.ErrOrderUnconfirmed)
		}
		return models.Order{}, err
	}
	if len(res.TxID) == 0 {
		return models.Order{}, fmt.Errorf("kraken AddOrder %s: no txid returned", m.Symbol)
	}
	c.l.Info("order placed", logger.String("symbol", m.Symbol), logger.String("side", string(side)),
		logger.String("volume", volume), logger.String("txid", res.TxID[0]), logger.String("descr", res.Descr.Order))

	o := models.Order{ID: res.TxID[0], ClientID: clientID, Symbol: m.Symbol, Side: side, Status: "open"}
	return c.awaitFill(ctx, o)
}

// placementUnknown reports whether a failed AddOrder may still have left an
// order on the book: the request went out and no verdict came back.
func placementUnknown(err error) bool {
	var (
		ve venueError
		se *apphttp.StatusError
	)
	switch {
	case errors.Is(err, errNotSent), errors.As(err, &ve):
		return false
	case errors.As(err, &se):
		return se.Status >= http.StatusInternalServerError
	}
	return true
}

// awaitFill polls QueryOrders until the market order leaves the book.
func (c *Client) awaitFill(ctx context.Context, o models.Order) (models.Order, error) {
	for i := 0; i < orderPolls; i++ {
		var res map[string]orderInfo
		err := c.private(ctx, "QueryOrders", url.Values{"txid": {o.ID}, "trades": {"false"}}, &res)
		if err != nil && !errors.Is(err, repository.ErrTransient) {
			return o, err
		}
		if info, ok := res[o.ID]; ok {
			o = applyInfo(o, info)
			switch info.Status {
			case "closed":
				return o, nil
			case "canceled", "expired":
				if o.Filled > 0 {
					return o, nil
				}
				return o, fmt.Errorf("%w: order %s %s: %s", repository.ErrInvalidOrder, o.ID, info.Status, info.Reason)
			}
		}
		t := time.NewTimer(c.orderPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return o, ctx.Err()
		case <-t.C:
		}
	}
	if o.Filled > 0 {
		return o, nil
	}
	// Not transient: a retry would place a second order.
	return o, fmt.Errorf("kraken order %s not filled after %d polls", o.ID, orderPolls)
}

func applyInfo(o models.Order, info orderInfo) models.Order {
	o.Status = info.Status
	o.Filled = parseFloat(info.VolExec)
	o.Cost = parseFloat(info.Cost)
	o.Average = parseFloat(info.Price)
	if info.Fee != "" {
		o.Fee = parseFloat(info.Fee)
		o.FeeReported = true
	}
	if info.CloseTm > 0 {
		sec := int64(info.CloseTm)
		o.Timestamp = time.Unix(sec, int64((info.CloseTm-float64(sec))*1e9)).UTC()
	}
	return o
}
