package ibgw

// Outgoing message ids (client -> gateway).
const (
	msgReqMktData           = 1
	msgCancelMktData        = 2
	msgPlaceOrder           = 3
	msgCancelOrder          = 4
	msgReqOpenOrders        = 5
	msgReqAccountUpdates    = 6
	msgReqExecutions        = 7
	msgReqIDs               = 8
	msgReqContractData      = 9
	msgReqHistoricalData    = 20
	msgCancelHistoricalData = 25
	msgReqMarketDataType    = 59
	msgReqPositions         = 61
	msgReqAccountSummary    = 62
	msgCancelAccountSummary = 63
	msgCancelPositions      = 64
	msgStartAPI             = 71
	msgReqMatchingSymbols   = 81
)

// Incoming message ids (gateway -> client).
const (
	inTickPrice         = 1
	inTickSize          = 2
	inOrderStatus       = 3
	inErrMsg            = 4
	inOpenOrder         = 5
	inAcctValue         = 6
	inPortfolioValue    = 7
	inAcctUpdateTime    = 8
	inNextValidID       = 9
	inContractData      = 10
	inExecutionData     = 11
	inManagedAccts      = 15
	inHistoricalData    = 17
	inTickString        = 46
	inContractDataEnd   = 52
	inOpenOrderEnd      = 53
	inAcctDownloadEnd   = 54
	inExecutionDataEnd  = 55
	inTickSnapshotEnd   = 57
	inMarketDataType    = 58
	inPositionData      = 61
	inPositionEnd       = 62
	inAccountSummary    = 63
	inAccountSummaryEnd = 64
	inSymbolSamples     = 79
)

// Tick field types delivered with TickPrice/TickSize callbacks.
const (
	TickBidSize   = 0
	TickBid       = 1
	TickAsk       = 2
	TickAskSize   = 3
	TickLast      = 4
	TickLastSize  = 5
	TickHigh      = 6
	TickLow       = 7
	TickVolume    = 8
	TickClose     = 9
	TickOpen      = 14
	TickTimestamp = 45
)

// Market data type codes for ReqMarketDataType.
const (
	MarketDataRealtime = 1
	MarketDataFrozen   = 2
	MarketDataDelayed  = 3
)
