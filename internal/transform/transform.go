package transform

import (
	"regexp"
	"strings"
	"time"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/domain/energydata"
)

// loadTypeMapping is the closed (process_type, document_type) -> DataType
// table for load documents (§4.4).
type loadTypeKey struct {
	ProcessType  string
	DocumentType string
}

var loadTypeMapping = map[loadTypeKey]energydata.DataType{
	{ProcessType: "day_ahead", DocumentType: "system_total_load"}:      energydata.DataTypeDayAhead,
	{ProcessType: "realised", DocumentType: "system_total_load"}:       energydata.DataTypeActual,
	{ProcessType: "week_ahead", DocumentType: "system_total_load"}:     energydata.DataTypeWeekAhead,
	{ProcessType: "month_ahead", DocumentType: "system_total_load"}:    energydata.DataTypeMonthAhead,
	{ProcessType: "year_ahead", DocumentType: "system_total_load"}:     energydata.DataTypeYearAhead,
	{ProcessType: "year_ahead", DocumentType: "load_forecast_margin"}:  energydata.DataTypeForecastMargin,
}

var loadProcessCodes = map[string]string{
	"day_ahead":            "A01",
	"intra_day_incremental": "A02",
	"realised":             "A16",
	"week_ahead":           "A31",
	"month_ahead":          "A32",
	"year_ahead":           "A33",
}

var loadDocumentCodes = map[string]string{
	"system_total_load":    "A65",
	"load_forecast_margin": "A70",
}

func availableLoadMappings() []string {
	out := make([]string, 0, len(loadTypeMapping))
	for k := range loadTypeMapping {
		out = append(out, loadProcessCodes[k.ProcessType]+"+"+loadDocumentCodes[k.DocumentType])
	}
	return out
}

func sourceCode(processType, documentType string) string {
	pc, ok := loadProcessCodes[processType]
	if !ok {
		pc = processType
	}
	dc, ok := loadDocumentCodes[documentType]
	if !ok {
		dc = documentType
	}
	return pc + "+" + dc
}

// mapLoadDataType resolves the closed (process_type, document_type)
// mapping, returning MappingError for unrecognized combinations.
func mapLoadDataType(processType, documentType string) (energydata.DataType, error) {
	dt, ok := loadTypeMapping[loadTypeKey{ProcessType: processType, DocumentType: documentType}]
	if !ok {
		return "", &apperrors.MappingError{
			SourceCode:        sourceCode(processType, documentType),
			AvailableMappings: availableLoadMappings(),
		}
	}
	return dt, nil
}

// mapPriceDataType resolves the price-document mapping: day_ahead
// process_type + price_document document_type always maps to day_ahead.
func mapPriceDataType(processType, documentType string) (energydata.DataType, error) {
	if processType == "day_ahead" && documentType == "price_document" {
		return energydata.DataTypeDayAhead, nil
	}
	return "", &apperrors.MappingError{
		SourceCode:        processType + "+" + documentType,
		AvailableMappings: []string{"A01+A44"},
	}
}

var areaCodeParenRe = regexp.MustCompile(`\(([A-Z]{2})\)`)

// extractAreaCode implements the area-code extraction fallback chain:
// the domain MRID's structured country code, then the first "(XX)"
// anywhere in its description, then the first 10 characters of the
// trimmed description with its spaces removed.
func extractAreaCode(mrid AreaMRID) (string, error) {
	if mrid.AreaCode != "" {
		return mrid.AreaCode, nil
	}
	desc := strings.TrimSpace(mrid.Description)
	if desc != "" {
		if m := areaCodeParenRe.FindStringSubmatch(desc); m != nil {
			return m[1], nil
		}
		stripped := strings.ReplaceAll(desc, " ", "")
		if stripped != "" {
			if len(stripped) > 10 {
				stripped = stripped[:10]
			}
			return stripped, nil
		}
	}
	sourceValue := mrid.Value
	if sourceValue == "" {
		sourceValue = desc
	}
	return "", &apperrors.TransformError{
		SourceValue: sourceValue,
		Err:         errEmptyAreaCode,
	}
}

var errEmptyAreaCode = &areaCodeError{}

type areaCodeError struct{}

func (e *areaCodeError) Error() string {
	return "domain MRID carries neither a structured area code nor a usable description"
}

// calculatePointTimestamp implements the position-to-timestamp law:
// offset = position-1; calendar components (Y, M) advance with
// calendar-aware arithmetic, absolute components (D, H, min) with fixed
// arithmetic; both apply additively for mixed resolutions.
func calculatePointTimestamp(periodStart time.Time, resolution string, position int) (time.Time, error) {
	components, err := parseISODuration(resolution)
	if err != nil {
		return time.Time{}, &apperrors.TimestampError{
			Resolution:  resolution,
			PeriodStart: periodStart.Format(time.RFC3339),
			Position:    position,
			Err:         err,
		}
	}
	offset := position - 1
	return addScaled(periodStart, components, offset), nil
}

// TransformLoad transforms one decoded load document into store-ready
// LoadPoints. Points with a nil Position or nil Quantity are skipped
// silently, as required by the point-filtering rule.
func TransformLoad(doc *LoadDocument) ([]energydata.LoadPoint, error) {
	dataType, err := mapLoadDataType(doc.ProcessType, doc.DocumentType)
	if err != nil {
		return nil, err
	}

	var points []energydata.LoadPoint
	for _, ts := range doc.TimeSeries {
		areaCode, err := extractAreaCode(ts.OutBiddingZoneDomainMRID)
		if err != nil {
			return nil, err
		}

		for _, p := range ts.Period.Points {
			if p.Position == nil || p.Quantity == nil {
				continue
			}
			timestamp, err := calculatePointTimestamp(ts.Period.Start, ts.Period.Resolution, *p.Position)
			if err != nil {
				return nil, err
			}
			points = append(points, energydata.LoadPoint{
				Key: energydata.Key{
					Timestamp:    timestamp,
					AreaCode:     areaCode,
					DataType:     dataType,
					BusinessType: ts.BusinessType,
				},
				Quantity:          *p.Quantity,
				Unit:              ts.QuantityMeasureUnitName,
				DataSource:        "entsoe",
				DocumentMRID:      doc.MRID,
				RevisionNumber:    doc.RevisionNumber,
				DocumentCreatedAt: doc.CreatedDateTime,
				TimeSeriesMRID:    ts.MRID,
				Resolution:        ts.Period.Resolution,
				CurveType:         ts.CurveType,
				ObjectAggregation: ts.ObjectAggregation,
				Position:          *p.Position,
				PeriodStart:       ts.Period.Start,
				PeriodEnd:         ts.Period.End,
			})
		}
	}
	return points, nil
}

// TransformPrice transforms one decoded day-ahead price document into
// store-ready PricePoints, applying the same point-filtering rule.
func TransformPrice(doc *PriceDocument) ([]energydata.PricePoint, error) {
	dataType, err := mapPriceDataType(doc.ProcessType, doc.DocumentType)
	if err != nil {
		return nil, err
	}

	var points []energydata.PricePoint
	for _, ts := range doc.TimeSeries {
		areaCode, err := extractAreaCode(ts.InDomainMRID)
		if err != nil {
			return nil, err
		}

		for _, p := range ts.Period.Points {
			if p.Position == nil || p.Price == nil {
				continue
			}
			timestamp, err := calculatePointTimestamp(ts.Period.Start, ts.Period.Resolution, *p.Position)
			if err != nil {
				return nil, err
			}
			points = append(points, energydata.PricePoint{
				Key: energydata.Key{
					Timestamp:    timestamp,
					AreaCode:     areaCode,
					DataType:     dataType,
					BusinessType: "",
				},
				PriceAmount:                 *p.Price,
				CurrencyUnitName:            ts.CurrencyUnitName,
				PriceMeasureUnitName:        ts.PriceMeasureUnitName,
				AuctionType:                 ts.AuctionType,
				ContractMarketAgreementType: ts.ContractMarketAgreementType,
				CurveType:                   ts.CurveType,
				DataSource:                  "entsoe",
				DocumentMRID:                doc.MRID,
				RevisionNumber:              doc.RevisionNumber,
				DocumentCreatedAt:           doc.CreatedDateTime,
				TimeSeriesMRID:              ts.MRID,
				Resolution:                  ts.Period.Resolution,
				Position:                    *p.Position,
				PeriodStart:                 ts.Period.Start,
				PeriodEnd:                   ts.Period.End,
			})
		}
	}
	return points, nil
}

// Transform dispatches on the decoded document shape, matching the
// uniform Transform(document) -> points entry point described in the
// component design. Exactly one of doc.Load / doc.Price must be set.
func Transform(doc Document) ([]energydata.LoadPoint, []energydata.PricePoint, error) {
	if doc.Load != nil {
		points, err := TransformLoad(doc.Load)
		return points, nil, err
	}
	if doc.Price != nil {
		points, err := TransformPrice(doc.Price)
		return nil, points, err
	}
	return nil, nil, &apperrors.DocumentParsingError{
		DocumentType: "unknown",
		Stage:        "dispatch",
		Err:          errEmptyDocument,
	}
}

var errEmptyDocument = &emptyDocumentError{}

type emptyDocumentError struct{}

func (e *emptyDocumentError) Error() string {
	return "document carries neither a load nor a price payload"
}
