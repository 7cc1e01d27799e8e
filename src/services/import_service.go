package services

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/parsers"
	"github.com/username/tradejournal/backend/src/parsers/generic"
	"github.com/username/tradejournal/backend/src/parsers/tradovate"
	"github.com/username/tradejournal/backend/src/processors"
)

// ImportStrategyLabel is the fixed strategy assigned to trades created by the
// reconciliation engine.
const ImportStrategyLabel = "Imported"

type importServiceImpl struct {
	ordersParser *tradovate.Parser
	tradesParser *generic.Parser
	matcher      *processors.TradeMatcher
	store        TradeStore
	stats        StatsService

	// One mutex per owner serializes concurrent imports by the same user:
	// the duplicate check-then-insert of a batch must not interleave with
	// another batch for the same owner. Different owners never contend.
	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

func NewImportService(store TradeStore, stats StatsService) ImportService {
	return &importServiceImpl{
		ordersParser: tradovate.NewParser(),
		tradesParser: generic.NewParser(),
		matcher:      processors.NewTradeMatcher(),
		store:        store,
		stats:        stats,
		userLocks:    make(map[int64]*sync.Mutex),
	}
}

func (s *importServiceImpl) lockForUser(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// ProcessImport runs the full pipeline for one uploaded file: detect format,
// parse, reconcile (orders path only), then persist the whole batch with
// duplicate suppression. The upload is buffered up front; the handler already
// enforces the size limit.
func (s *importServiceImpl) ProcessImport(fileReader io.Reader, userID int64, filename string, filesize int64) (*models.ImportResult, error) {
	start := time.Now()
	logger.L.Info("ProcessImport START", "userID", userID, "filename", filename)

	data, err := io.ReadAll(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", ErrParsingFailed, err)
	}

	format, err := parsers.DetectFormat(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}

	var trades []models.Trade
	var openPositions []models.OpenPosition

	switch format {
	case parsers.FormatOrders:
		fillsBySymbol, err := s.ordersParser.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
		}
		trades, openPositions = s.matcher.Match(fillsBySymbol)
	case parsers.FormatTrades:
		trades, err = s.tradesParser.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
		}
	}

	result := &models.ImportResult{
		Format:        string(format),
		OpenPositions: openPositions,
	}
	if len(trades) == 0 {
		logger.L.Info("ProcessImport END: no trades produced", "userID", userID, "format", format, "duration", time.Since(start))
		return result, nil
	}

	lock := s.lockForUser(userID)
	lock.Lock()
	defer lock.Unlock()

	imported, skipped, err := s.store.SaveBatch(userID, trades,
		ImportRecord{Filename: filename, FileSize: filesize, Format: string(format)},
		ImportStrategyLabel)
	if err != nil {
		return nil, err
	}
	result.ImportedCount = imported
	result.SkippedCount = skipped

	if imported > 0 && s.stats != nil {
		s.stats.InvalidateUserCache(userID)
	}

	logger.L.Info("ProcessImport END", "userID", userID, "format", format,
		"imported", imported, "skipped", skipped, "duration", time.Since(start))
	return result, nil
}
