package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/domain/energydata"
)

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }

func sampleLoadDocument() *LoadDocument {
	return &LoadDocument{
		MRID:            "doc-mrid-1",
		RevisionNumber:  intPtr(1),
		CreatedDateTime: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
		ProcessType:     "realised",
		DocumentType:    "system_total_load",
		TimeSeries: []LoadTimeSeries{
			{
				MRID:                     "ts-mrid-1",
				BusinessType:             "A04",
				ObjectAggregation:        "A01",
				CurveType:                "A01",
				QuantityMeasureUnitName:  "MAW",
				OutBiddingZoneDomainMRID: AreaMRID{AreaCode: "DE"},
				Period: Period{
					Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					End:        time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
					Resolution: "PT15M",
					Points: []Point{
						{Position: intPtr(1), Quantity: floatPtr(100.5)},
						{Position: intPtr(2), Quantity: floatPtr(101.2)},
						{Position: nil, Quantity: floatPtr(999)},      // skipped: no position
						{Position: intPtr(4), Quantity: nil},          // skipped: no quantity
					},
				},
			},
		},
	}
}

func TestTransformLoadHappyPath(t *testing.T) {
	points, err := TransformLoad(sampleLoadDocument())
	require.NoError(t, err)
	require.Len(t, points, 2, "nil position/quantity points must be skipped silently")

	assert.Equal(t, energydata.DataTypeActual, points[0].DataType)
	assert.Equal(t, "DE", points[0].AreaCode)
	assert.Equal(t, "doc-mrid-1", points[0].DocumentMRID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), points[0].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC), points[1].Timestamp)
}

func TestTransformLoadRejectsUnknownMapping(t *testing.T) {
	doc := sampleLoadDocument()
	doc.ProcessType = "intra_day_incremental"

	_, err := TransformLoad(doc)
	require.Error(t, err)

	var mappingErr *apperrors.MappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, "A02+A65", mappingErr.SourceCode)
	assert.Len(t, mappingErr.AvailableMappings, 6)
}

func TestTransformLoadIsDeterministic(t *testing.T) {
	doc := sampleLoadDocument()
	first, err := TransformLoad(doc)
	require.NoError(t, err)
	second, err := TransformLoad(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractAreaCodeFallbackChain(t *testing.T) {
	direct, err := extractAreaCode(AreaMRID{AreaCode: "FR"})
	require.NoError(t, err)
	assert.Equal(t, "FR", direct)

	fromDescription, err := extractAreaCode(AreaMRID{Description: "Netherlands (NL) bidding zone"})
	require.NoError(t, err)
	assert.Equal(t, "NL", fromDescription)

	truncated, err := extractAreaCode(AreaMRID{Description: "Some Long Zone Name Without Code"})
	require.NoError(t, err)
	assert.Len(t, truncated, 10)

	_, err = extractAreaCode(AreaMRID{})
	assert.Error(t, err)
}

func TestTransformPriceHappyPath(t *testing.T) {
	doc := &PriceDocument{
		MRID:            "price-doc-1",
		CreatedDateTime: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
		ProcessType:     "day_ahead",
		DocumentType:    "price_document",
		TimeSeries: []PriceTimeSeries{
			{
				MRID:                 "price-ts-1",
				InDomainMRID:         AreaMRID{AreaCode: "DE"},
				CurrencyUnitName:     "EUR",
				PriceMeasureUnitName: "MWH",
				Period: Period{
					Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					Resolution: "PT60M",
					Points: []Point{
						{Position: intPtr(1), Price: floatPtr(45.3)},
					},
				},
			},
		},
	}

	points, err := TransformPrice(doc)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, energydata.DataTypeDayAhead, points[0].DataType)
	assert.Equal(t, 45.3, points[0].PriceAmount)
}
