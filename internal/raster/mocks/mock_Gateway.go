// Package mocks provides test doubles for the raster gateway.
package mocks

import (
	"context"

	raster "github.com/sells-group/greengrowth/internal/raster"
	mock "github.com/stretchr/testify/mock"
)

// MockGateway is a mock type for the Gateway interface.
type MockGateway struct {
	mock.Mock
}

// ReduceRegion provides a mock function with given fields: ctx, req
func (_m *MockGateway) ReduceRegion(ctx context.Context, req raster.ReduceRequest) (map[string]*float64, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for ReduceRegion")
	}

	var r0 map[string]*float64
	if rf, ok := ret.Get(0).(func(context.Context, raster.ReduceRequest) map[string]*float64); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(map[string]*float64)
	}

	return r0, ret.Error(1)
}

// MapReduceRegion provides a mock function with given fields: ctx, req
func (_m *MockGateway) MapReduceRegion(ctx context.Context, req raster.MapReduceRequest) ([]raster.DatedValue, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for MapReduceRegion")
	}

	var r0 []raster.DatedValue
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]raster.DatedValue)
	}

	return r0, ret.Error(1)
}

// StratifiedSample provides a mock function with given fields: ctx, req
func (_m *MockGateway) StratifiedSample(ctx context.Context, req raster.SampleRequest) ([]raster.Sample, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for StratifiedSample")
	}

	var r0 []raster.Sample
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]raster.Sample)
	}

	return r0, ret.Error(1)
}

// TileURL provides a mock function with given fields: ctx, req
func (_m *MockGateway) TileURL(ctx context.Context, req raster.TileRequest) (string, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for TileURL")
	}

	return ret.String(0), ret.Error(1)
}

// SubmitExport provides a mock function with given fields: ctx, req
func (_m *MockGateway) SubmitExport(ctx context.Context, req raster.ExportRequest) (*raster.ExportTask, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for SubmitExport")
	}

	var r0 *raster.ExportTask
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*raster.ExportTask)
	}

	return r0, ret.Error(1)
}

// NewMockGateway creates a new instance of MockGateway and registers a
// cleanup that asserts expectations.
func NewMockGateway(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGateway {
	m := &MockGateway{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ raster.Gateway = (*MockGateway)(nil)
