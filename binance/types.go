package binance

// Wire types for the Binance USD-M futures REST API. Numeric fields arrive
// as JSON strings and are parsed with strconv at the call sites.

// ticker24h is one element of GET /fapi/v1/ticker/24hr.
type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Count              int64  `json:"count"`
	TakerBuyVolume     string `json:"takerBuyBaseAssetVolume"`
}

// premiumIndex is one element of GET /fapi/v1/premiumIndex.
type premiumIndex struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	MarkPrice       string `json:"markPrice"`
}

// openInterest is GET /fapi/v1/openInterest?symbol=X.
type openInterest struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// exchangeInfo is GET /fapi/v1/exchangeInfo (only the fields we filter on).
type exchangeInfo struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol       string `json:"symbol"`
	QuoteAsset   string `json:"quoteAsset"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
}
