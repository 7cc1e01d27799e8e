package processors

import (
	"fmt"
	"strings"
	"time"

	"github.com/username/tradejournal/backend/src/models"
)

// lot is a slice of still-open inventory created by an opening fill. The
// price is fixed at creation; only the remaining quantity shrinks as later
// opposing fills consume the lot.
type lot struct {
	remaining float64
	price     float64
	timestamp time.Time
	orderID   string
}

// positionBook is the per-symbol matching state: two FIFO queues of lots,
// oldest first. Outside of the single fill event that flips a position, at
// most one of the two queues is non-empty.
type positionBook struct {
	longs  []lot
	shorts []lot
}

// TradeMatcher replays chronologically ordered fills per symbol and emits one
// closed trade for every fill event that offsets existing inventory. It does
// no I/O; persistence and duplicate handling belong to the import service.
type TradeMatcher struct{}

func NewTradeMatcher() *TradeMatcher { return &TradeMatcher{} }

// Match processes every symbol group and returns the closed trades plus the
// residual open positions. Fills within each group must already be sorted
// ascending by timestamp, which is the parser's contract.
func (m *TradeMatcher) Match(fillsBySymbol map[string][]models.Fill) ([]models.Trade, []models.OpenPosition) {
	var trades []models.Trade
	var open []models.OpenPosition
	for symbol, fills := range fillsBySymbol {
		symbolTrades, residual := m.MatchSymbol(symbol, fills)
		trades = append(trades, symbolTrades...)
		if residual != nil {
			open = append(open, *residual)
		}
	}
	return trades, open
}

// MatchSymbol replays one symbol's fills through the lot queues. Each fill
// either extends same-direction inventory (no trade emitted) or consumes
// opposing lots FIFO, emitting exactly one closed trade for the consumed
// portion. A fill larger than the opposing inventory closes everything and
// opens a new position in its own direction within the same event.
func (m *TradeMatcher) MatchSymbol(symbol string, fills []models.Fill) ([]models.Trade, *models.OpenPosition) {
	book := &positionBook{}
	var trades []models.Trade

	for _, fill := range fills {
		if fill.Quantity <= 0 {
			// The parser guarantees positive quantities; anything else
			// reaching this point would silently corrupt PnL.
			panic(fmt.Sprintf("trade matcher: non-positive fill quantity %v for %s (order %s)", fill.Quantity, symbol, fill.OrderID))
		}

		switch fill.Side {
		case models.SideBuy:
			remainder, closed := closeAgainst(&book.shorts, fill, models.DirectionShort)
			if closed != nil {
				trades = append(trades, *closed)
			}
			if remainder > 0 {
				book.longs = append(book.longs, lot{remaining: remainder, price: fill.Price, timestamp: fill.Timestamp, orderID: fill.OrderID})
			}
		case models.SideSell:
			remainder, closed := closeAgainst(&book.longs, fill, models.DirectionLong)
			if closed != nil {
				trades = append(trades, *closed)
			}
			if remainder > 0 {
				book.shorts = append(book.shorts, lot{remaining: remainder, price: fill.Price, timestamp: fill.Timestamp, orderID: fill.OrderID})
			}
		default:
			panic(fmt.Sprintf("trade matcher: unknown fill side %q for %s", fill.Side, symbol))
		}
	}

	return trades, book.residual(symbol)
}

// closeAgainst consumes lots from the front of the opposing queue, up to the
// fill's quantity, and builds the single closed trade for this fill event.
// It returns the unconsumed remainder of the fill (which opens new inventory
// in the fill's own direction) and the emitted trade, nil if the queue was
// empty. direction is the direction of the position being closed.
func closeAgainst(queue *[]lot, fill models.Fill, direction string) (float64, *models.Trade) {
	if len(*queue) == 0 {
		return fill.Quantity, nil
	}

	var (
		closedQty  float64
		costBasis  float64 // sum(lot.price × consumed) over this event only
		entryTime  time.Time
		orderTrail []string
	)
	remaining := fill.Quantity

	for remaining > 0 && len(*queue) > 0 {
		head := &(*queue)[0]
		consumed := head.remaining
		if consumed > remaining {
			consumed = remaining
		}

		if closedQty == 0 {
			// FIFO: the head of the queue is always the oldest lot.
			entryTime = head.timestamp
		}
		closedQty += consumed
		costBasis += head.price * consumed
		if head.orderID != "" {
			orderTrail = append(orderTrail, head.orderID)
		}

		head.remaining -= consumed
		remaining -= consumed
		if head.remaining == 0 {
			*queue = (*queue)[1:]
		}
	}

	entryPrice := costBasis / closedQty
	pointValue := PointValue(fill.Symbol)
	var pnl float64
	if direction == models.DirectionLong {
		pnl = (fill.Price - entryPrice) * closedQty * pointValue
	} else {
		pnl = (entryPrice - fill.Price) * closedQty * pointValue
	}

	exitTime := fill.Timestamp
	exitPrice := fill.Price
	notes := fmt.Sprintf("Matched orders %s -> %s", strings.Join(orderTrail, ", "), fill.OrderID)

	trade := &models.Trade{
		Ticker:       fill.Symbol,
		Direction:    direction,
		EntryDate:    entryTime,
		ExitDate:     &exitTime,
		EntryPrice:   entryPrice,
		ExitPrice:    &exitPrice,
		PositionSize: closedQty,
		PnL:          pnl,
		Notes:        notes,
	}
	return remaining, trade
}

// residual reports whatever inventory is still open after the replay.
func (b *positionBook) residual(symbol string) *models.OpenPosition {
	queue := b.longs
	direction := models.DirectionLong
	if len(queue) == 0 {
		queue = b.shorts
		direction = models.DirectionShort
	}
	if len(queue) == 0 {
		return nil
	}

	var qty, cost float64
	oldest := queue[0].timestamp
	for _, l := range queue {
		qty += l.remaining
		cost += l.price * l.remaining
	}
	return &models.OpenPosition{
		Symbol:    symbol,
		Direction: direction,
		Quantity:  qty,
		AvgPrice:  cost / qty,
		OldestLot: oldest,
	}
}
