package cmd

import (
	"context"
	"strconv"
)

// MockHostSampler is a mock implementation of the HostSampler interface.
type MockHostSampler struct {
	Load1Func             func(ctx context.Context) (float64, error)
	MemoryUsedPercentFunc func(ctx context.Context) (float64, error)
	CPUTemperature        string
}

func (m *MockHostSampler) Load1(ctx context.Context) (float64, error) {
	if m.Load1Func != nil {
		return m.Load1Func(ctx)
	}
	return 0, nil
}

func (m *MockHostSampler) MemoryUsedPercent(ctx context.Context) (float64, error) {
	if m.MemoryUsedPercentFunc != nil {
		return m.MemoryUsedPercentFunc(ctx)
	}
	return 0, nil
}

func (m *MockHostSampler) CPULoadFunc() func() string {
	return func() string {
		v, _ := m.Load1(context.Background())
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}

func (m *MockHostSampler) CPUTemperatureFunc() func() string {
	return func() string {
		return m.CPUTemperature
	}
}
