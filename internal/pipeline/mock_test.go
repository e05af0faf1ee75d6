package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/greengrowth/internal/advisor"
	"github.com/sells-group/greengrowth/internal/datacommons"
	"github.com/sells-group/greengrowth/internal/indices"
	"github.com/sells-group/greengrowth/internal/raster"
)

// --- IndexComputer Mock ---

type mockIndexComputer struct {
	mock.Mock
}

func (m *mockIndexComputer) Region(lat, lng float64) (raster.Region, error) {
	args := m.Called(lat, lng)
	return args.Get(0).(raster.Region), args.Error(1)
}

func (m *mockIndexComputer) RecentVegetation(ctx context.Context, region raster.Region) (*indices.VegetationResult, error) {
	args := m.Called(ctx, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indices.VegetationResult), args.Error(1)
}

func (m *mockIndexComputer) NewConstruction(ctx context.Context, region raster.Region) (*indices.ConstructionResult, error) {
	args := m.Called(ctx, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indices.ConstructionResult), args.Error(1)
}

func (m *mockIndexComputer) History(ctx context.Context, region raster.Region) ([]indices.HistoryPoint, error) {
	args := m.Called(ctx, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]indices.HistoryPoint), args.Error(1)
}

func (m *mockIndexComputer) ExportHistory(ctx context.Context, region raster.Region, description string) (*raster.ExportTask, error) {
	args := m.Called(ctx, region, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*raster.ExportTask), args.Error(1)
}

// --- ContextResolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) LocationContext(ctx context.Context, lat, lng float64) datacommons.LocationContext {
	args := m.Called(ctx, lat, lng)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(datacommons.LocationContext)
}

// --- ActionWriter Mock ---

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) StockingAction(ctx context.Context, req advisor.ActionRequest) string {
	args := m.Called(ctx, req)
	return args.String(0)
}
