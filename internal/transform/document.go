// Package transform implements the pure document-to-points transformation
// (C4): turning one decoded ENTSO-E document into typed, store-ready
// points. It performs no I/O and is deterministic.
package transform

import "time"

// AreaMRID is the decoded domain MRID carrying an area code, with the
// fallback description the extractor uses when the structured code is
// absent.
type AreaMRID struct {
	AreaCode    string
	Description string
	Value       string
}

// Point is one raw observation within a TimeSeries period. Quantity is
// used by load documents, Price by price documents; exactly one is set
// per document shape.
type Point struct {
	Position *int
	Quantity *float64
	Price    *float64
}

// Period is the time interval a TimeSeries' points are spaced across.
type Period struct {
	Start      time.Time
	End        time.Time
	Resolution string
	Points     []Point
}

// LoadTimeSeries is one TimeSeries within a GL_MarketDocument (load /
// load-forecast document).
type LoadTimeSeries struct {
	MRID                     string
	BusinessType             string
	ObjectAggregation        string
	OutBiddingZoneDomainMRID AreaMRID
	QuantityMeasureUnitName  string
	CurveType                string
	Period                   Period
}

// LoadDocument is the decoded shape of a GL_MarketDocument: system total
// load, its forecasts, and load forecast margin.
type LoadDocument struct {
	MRID            string
	RevisionNumber  *int
	CreatedDateTime time.Time
	ProcessType     string
	DocumentType    string
	TimeSeries      []LoadTimeSeries
}

// PriceTimeSeries is one TimeSeries within a Publication_MarketDocument
// (day-ahead price document).
type PriceTimeSeries struct {
	MRID                        string
	InDomainMRID                AreaMRID
	CurrencyUnitName            string
	PriceMeasureUnitName        string
	AuctionType                 *string
	ContractMarketAgreementType *string
	CurveType                   *string
	Period                      Period
}

// PriceDocument is the decoded shape of a day-ahead price document.
type PriceDocument struct {
	MRID            string
	RevisionNumber  *int
	CreatedDateTime time.Time
	ProcessType     string
	DocumentType    string
	TimeSeries      []PriceTimeSeries
}

// Document wraps exactly one of the two decoded shapes the Collector
// Adapter can return for a given endpoint.
type Document struct {
	Load  *LoadDocument
	Price *PriceDocument
}
