// Package sysstats samples host load, temperature and memory for the device
// stats and the host monitor node.
package sysstats

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"
	"go.uber.org/zap"

	"github.com/anicoll/homie-integration/internal/pkg/contxt"
)

const sampleTimeout = 2 * time.Second

var ErrNoSensor = errors.New("sysstats: no temperature sensor found")

// cpuSensorKeys identify CPU package sensors across the common hwmon drivers.
var cpuSensorKeys = []string{"coretemp", "k10temp", "cpu", "package", "soc"}

type Sampler struct {
	logger        *zap.Logger
	loadAvg       func(ctx context.Context) (*load.AvgStat, error)
	temperatures  func(ctx context.Context) ([]sensors.TemperatureStat, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func New() *Sampler {
	return &Sampler{
		logger:        zap.L(),
		loadAvg:       load.AvgWithContext,
		temperatures:  sensors.TemperaturesWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
	}
}

// Load1 returns the one minute load average.
func (s *Sampler) Load1(ctx context.Context) (float64, error) {
	ctx, cancel := contxt.WithTimeout(ctx, sampleTimeout)
	defer cancel()
	avg, err := s.loadAvg(ctx)
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

// CPUTemperature returns the hottest CPU sensor reading in °C, falling back to
// the hottest sensor of any kind.
func (s *Sampler) CPUTemperature(ctx context.Context) (float64, error) {
	ctx, cancel := contxt.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	temps, err := s.temperatures(ctx)
	if len(temps) == 0 {
		if err != nil {
			return 0, err
		}
		return 0, ErrNoSensor
	}
	// partial readings come back together with a warnings error
	if err != nil {
		s.logger.Debug("temperature sensors reported warnings", zap.Error(err))
	}

	cpu := lo.Filter(temps, func(t sensors.TemperatureStat, _ int) bool {
		key := strings.ToLower(t.SensorKey)
		return lo.SomeBy(cpuSensorKeys, func(k string) bool { return strings.Contains(key, k) })
	})
	if len(cpu) == 0 {
		cpu = temps
	}
	hottest := lo.MaxBy(cpu, func(a, b sensors.TemperatureStat) bool {
		return a.Temperature > b.Temperature
	})
	return hottest.Temperature, nil
}

// MemoryUsedPercent returns used memory as a percentage of the total.
func (s *Sampler) MemoryUsedPercent(ctx context.Context) (float64, error) {
	ctx, cancel := contxt.WithTimeout(ctx, sampleTimeout)
	defer cancel()
	vm, err := s.virtualMemory(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// CPULoadFunc adapts Load1 to a $stats/cpuload callback. Failures are logged
// and reported as an empty payload.
func (s *Sampler) CPULoadFunc() func() string {
	return s.statsFunc("cpuload", s.Load1)
}

// CPUTemperatureFunc adapts CPUTemperature to a $stats/cputemp callback.
func (s *Sampler) CPUTemperatureFunc() func() string {
	return s.statsFunc("cputemp", s.CPUTemperature)
}

func (s *Sampler) statsFunc(name string, sample func(context.Context) (float64, error)) func() string {
	return func() string {
		v, err := sample(context.Background())
		if err != nil {
			s.logger.Warn("unable to sample host stat", zap.String("stat", name), zap.Error(err))
			return ""
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}
