package intensity

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/testutil"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Breaks(values []float64, classes int) ([]float64, error) {
	args := m.Called(values, classes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Put(ctx context.Context, t *table.Table) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockStore) Get(ctx context.Context, name string) (*table.Table, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*table.Table), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockStore) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	return args.Get(0).([]string), args.Error(1)
}

func fp(v float64) *float64 { return &v }

func attributeActivity(method activity.Method) activity.Activity {
	return activity.Activity{Code: "cf_trawl", Kind: activity.Marine, IntensityField: "hours", Method: method}
}

func collections(values map[activity.Scenario][]*float64) map[activity.Scenario]*activity.FeatureCollection {
	out := make(map[activity.Scenario]*activity.FeatureCollection)
	for scn, vals := range values {
		fc := &activity.FeatureCollection{Activity: "cf_trawl", Scenario: scn}
		for i, v := range vals {
			fc.Features = append(fc.Features, activity.Feature{
				ID:        int64(i),
				Intensity: v,
				Geometry:  testutil.Pt(float64(i), 0),
			})
		}
		out[scn] = fc
	}
	return out
}

func TestNormalize_RescaleAcrossScenarios(t *testing.T) {
	ctx := context.Background()
	store := table.NewMemoryStore()
	svc := NewService(nil, store, DefaultOptions(), testutil.NewMockLogger())

	res, err := svc.Normalize(ctx, &NormalizeInput{
		Activity: attributeActivity(""),
		Collections: collections(map[activity.Scenario][]*float64{
			activity.Current: {fp(2), fp(4)},
			activity.Future:  {fp(8), fp(0)},
		}),
		RunID: "run-1",
	})
	require.NoError(t, err)

	assert.Equal(t, activity.MethodRescale, res.Method)
	assert.Equal(t, 8.0, res.Max)

	maxRI := 0.0
	for _, recs := range res.Records {
		for _, r := range recs {
			assert.GreaterOrEqual(t, r.RI, 0.0)
			assert.LessOrEqual(t, r.RI, 1.0)
			if r.RI > maxRI {
				maxRI = r.RI
			}
		}
	}
	assert.Equal(t, 1.0, maxRI)
	assert.InDelta(t, 0.25, res.Records[activity.Current][0].RI, 1e-12)
	assert.InDelta(t, 0.5, res.Records[activity.Current][1].RI, 1e-12)

	assert.Equal(t, []string{"RI_c_cf_trawl", "RI_f_cf_trawl"}, res.Tables)
	ri, err := store.Get(ctx, "RI_c_cf_trawl")
	require.NoError(t, err)
	assert.Equal(t, table.KeyFeature, ri.KeyName)
	assert.Equal(t, "run-1", ri.Attr(table.AttrRunID))
	v, ok := ri.Get(1, ColumnRI)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-12)
	raw, _ := ri.Get(1, ColumnRaw)
	assert.Equal(t, 4.0, raw)
}

func TestNormalize_PersistSubset(t *testing.T) {
	ctx := context.Background()
	store := table.NewMemoryStore()
	svc := NewService(nil, store, DefaultOptions(), testutil.NewMockLogger())

	res, err := svc.Normalize(ctx, &NormalizeInput{
		Activity: attributeActivity(activity.MethodRescale),
		Collections: collections(map[activity.Scenario][]*float64{
			activity.Current: {fp(2), fp(4)},
			activity.Future:  {fp(40)},
		}),
		Persist: []activity.Scenario{activity.Current},
	})
	require.NoError(t, err)

	assert.Equal(t, 40.0, res.Max)
	assert.Equal(t, []string{"RI_c_cf_trawl"}, res.Tables)
	ri, err := store.Get(ctx, "RI_c_cf_trawl")
	require.NoError(t, err)
	v, _ := ri.Get(1, ColumnRI)
	assert.InDelta(t, 0.1, v, 1e-12)

	_, err = store.Get(ctx, "RI_f_cf_trawl")
	assert.True(t, errors.IsCode(err, errors.ErrCodeTableNotFound))
}

func TestNormalize_RescaleAllZero(t *testing.T) {
	svc := NewService(nil, table.NewMemoryStore(), DefaultOptions(), nil)
	res, err := svc.Normalize(context.Background(), &NormalizeInput{
		Activity:    attributeActivity(activity.MethodRescale),
		Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(0), fp(0)}}),
	})
	require.NoError(t, err)
	for _, r := range res.Records[activity.Current] {
		assert.Equal(t, 0.0, r.RI)
	}
}

func TestNormalize_Reclass(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("Breaks", mock.Anything, 3).Return([]float64{1, 5, 10}, nil)

	svc := NewService(classifier, table.NewMemoryStore(), DefaultOptions(), nil)
	res, err := svc.Normalize(context.Background(), &NormalizeInput{
		Activity: attributeActivity(activity.MethodReclass),
		Collections: collections(map[activity.Scenario][]*float64{
			activity.Current: {fp(1), fp(3)},
			activity.Future:  {fp(10)},
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 5, 10}, res.Breaks)
	assert.Equal(t, 0.5, res.Records[activity.Current][0].RI)
	assert.Equal(t, 1.0, res.Records[activity.Current][1].RI)
	assert.Equal(t, 1.5, res.Records[activity.Future][0].RI)

	// Breaks are computed once over the union of scenarios.
	classifier.AssertNumberOfCalls(t, "Breaks", 1)
	values := classifier.Calls[0].Arguments.Get(0).([]float64)
	assert.ElementsMatch(t, []float64{1, 3, 10}, values)
}

func TestNormalize_ReclassCustomExpression(t *testing.T) {
	classifier := new(MockClassifier)
	classifier.On("Breaks", mock.Anything, 2).Return([]float64{2, 9}, nil)

	opts := Options{Method: activity.MethodReclass, ReclassClasses: 2, ReclassSlope: 2, ReclassIntercept: 1}
	svc := NewService(classifier, table.NewMemoryStore(), opts, nil)
	res, err := svc.Normalize(context.Background(), &NormalizeInput{
		Activity:    attributeActivity(""),
		Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(1), fp(9)}}),
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Records[activity.Current][0].RI)
	assert.Equal(t, 5.0, res.Records[activity.Current][1].RI)
}

func TestNormalize_None(t *testing.T) {
	svc := NewService(nil, table.NewMemoryStore(), DefaultOptions(), nil)
	res, err := svc.Normalize(context.Background(), &NormalizeInput{
		Activity:    attributeActivity(activity.MethodNone),
		Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(7.5)}}),
	})
	require.NoError(t, err)
	assert.Equal(t, 7.5, res.Records[activity.Current][0].RI)
}

func TestNormalize_ShapeProxy(t *testing.T) {
	act := activity.Activity{Code: "shipping", Kind: activity.Marine, Method: activity.MethodNone}
	fc := &activity.FeatureCollection{Activity: "shipping", Scenario: activity.Current, Features: []activity.Feature{
		{ID: 0, Geometry: testutil.Pt(1, 1)},
		{ID: 1, Geometry: testutil.Line(0, 0, 3, 4)},
		{ID: 2, Geometry: testutil.Square(0, 0, 10)},
		{ID: 3, SubActivity: "tanker", Geometry: testutil.Pt(2, 2)},
	}}
	svc := NewService(nil, table.NewMemoryStore(), DefaultOptions(), nil)
	res, err := svc.Normalize(context.Background(), &NormalizeInput{
		Activity:    act,
		Collections: map[activity.Scenario]*activity.FeatureCollection{activity.Current: fc},
	})
	require.NoError(t, err)

	recs := res.Records[activity.Current]
	require.Len(t, recs, 4)
	assert.Equal(t, 1.0, recs[0].RI)
	assert.InDelta(t, 5.0, recs[1].RI, 1e-9)
	assert.InDelta(t, 100.0, recs[2].RI, 1e-9)
	for _, r := range recs {
		assert.True(t, r.ShapeProxy)
	}
	assert.Equal(t, activity.NoSubActivity, recs[0].SubActivity)
	assert.Equal(t, "tanker", recs[3].SubActivity)
}

func TestNormalize_Errors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, table.NewMemoryStore(), DefaultOptions(), nil)

	t.Run("null intensity", func(t *testing.T) {
		_, err := svc.Normalize(ctx, &NormalizeInput{
			Activity:    attributeActivity(""),
			Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(1), nil}}),
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeNullIntensity))
		assert.Contains(t, err.Error(), "feature=1")
	})

	t.Run("negative intensity", func(t *testing.T) {
		_, err := svc.Normalize(ctx, &NormalizeInput{
			Activity:    attributeActivity(""),
			Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(-1)}}),
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeNegativeIntensity))
	})

	t.Run("unsupported geometry", func(t *testing.T) {
		fc := &activity.FeatureCollection{Features: []activity.Feature{{ID: 0}}}
		_, err := svc.Normalize(ctx, &NormalizeInput{
			Activity:    activity.Activity{Code: "aquaculture"},
			Collections: map[activity.Scenario]*activity.FeatureCollection{activity.Current: fc},
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedGeometry))
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := svc.Normalize(ctx, &NormalizeInput{
			Activity:    attributeActivity("log"),
			Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(1)}}),
		})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidMethod))
	})

	t.Run("missing activity", func(t *testing.T) {
		_, err := svc.Normalize(ctx, &NormalizeInput{})
		assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	})
}

func TestNormalize_StoreFailure(t *testing.T) {
	store := new(MockStore)
	store.On("Put", mock.Anything, mock.AnythingOfType("*table.Table")).
		Return(errors.Wrap(stderrors.New("disk full"), errors.ErrCodeTableWrite, "write failed"))

	svc := NewService(nil, store, DefaultOptions(), nil)
	_, err := svc.Normalize(context.Background(), &NormalizeInput{
		Activity:    attributeActivity(""),
		Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(1)}}),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTableWrite, errors.GetCode(err))
	store.AssertExpectations(t)
}

func TestNormalize_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := table.NewMemoryStore()
	svc := NewService(nil, store, DefaultOptions(), nil)
	input := &NormalizeInput{
		Activity:    attributeActivity(""),
		Collections: collections(map[activity.Scenario][]*float64{activity.Current: {fp(3), fp(6)}}),
	}

	_, err := svc.Normalize(ctx, input)
	require.NoError(t, err)
	first, _ := store.Get(ctx, "RI_c_cf_trawl")
	_, err = svc.Normalize(ctx, input)
	require.NoError(t, err)
	second, _ := store.Get(ctx, "RI_c_cf_trawl")

	assert.Equal(t, first.Column(ColumnRI), second.Column(ColumnRI))
	assert.Equal(t, 2, second.Len())
}
