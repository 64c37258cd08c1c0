package cmd

import (
	"context"
)

// HostSampler is what the host monitor reads the machine through.
type HostSampler interface {
	Load1(ctx context.Context) (float64, error)
	MemoryUsedPercent(ctx context.Context) (float64, error)
	CPULoadFunc() func() string
	CPUTemperatureFunc() func() string
}
