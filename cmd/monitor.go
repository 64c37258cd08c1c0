package cmd

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/anicoll/homie-integration/internal/pkg/homie"
)

const (
	modeNormal      = "normal"
	modeMaintenance = "maintenance"
)

type hostObserver interface {
	ObserveHost(cpuLoad, memoryPercent float64)
}

type alerter interface {
	SetAlert(alert bool)
	State() homie.State
}

// hostMonitor is the "system" node describing the machine the device runs on.
type hostMonitor struct {
	device   alerter
	sampler  HostSampler
	observer hostObserver
	logger   *zap.Logger

	cpuLoad *homie.Property
	memory  *homie.Property
	alert   *homie.Property
	mode    *homie.Property
}

func newHostMonitor(dev *homie.Device, sampler HostSampler, observer hostObserver, logger *zap.Logger) (*hostMonitor, error) {
	node, err := dev.CreateNode("system", "host-monitor")
	if err != nil {
		return nil, err
	}
	node.SetName("System")

	m := &hostMonitor{device: dev, sampler: sampler, observer: observer, logger: logger}

	if m.cpuLoad, err = node.Property("cpu-load"); err != nil {
		return nil, err
	}
	m.cpuLoad.SetName("CPU load")
	m.cpuLoad.SetDataType(homie.DataTypeFloat)

	if m.memory, err = node.Property("memory"); err != nil {
		return nil, err
	}
	m.memory.SetName("Memory used")
	m.memory.SetDataType(homie.DataTypeFloat)
	m.memory.SetUnit("%")
	if err := m.memory.SetFormat("0:100"); err != nil {
		return nil, err
	}

	if m.alert, err = node.Property("alert"); err != nil {
		return nil, err
	}
	m.alert.SetName("Alert")
	m.alert.SetDataType(homie.DataTypeBoolean)
	m.alert.MakeSettable(homie.SetHandlerFunc(m.handleAlert))

	if m.mode, err = node.Property("mode"); err != nil {
		return nil, err
	}
	m.mode.SetName("Mode")
	m.mode.SetDataType(homie.DataTypeEnum)
	if err := m.mode.SetFormat(modeNormal + "," + modeMaintenance); err != nil {
		return nil, err
	}
	m.mode.MakeSettable(homie.SetHandlerFunc(m.handleMode))

	return m, nil
}

// sample reads the host and publishes the readings.
func (m *hostMonitor) sample(ctx context.Context) {
	load, err := m.sampler.Load1(ctx)
	if err != nil {
		m.logger.Warn("unable to read load average", zap.Error(err))
		return
	}
	used, err := m.sampler.MemoryUsedPercent(ctx)
	if err != nil {
		m.logger.Warn("unable to read memory usage", zap.Error(err))
		return
	}
	m.observer.ObserveHost(load, used)

	if err := m.cpuLoad.Send(homie.FloatWithPrecision(load, 2)); err != nil {
		m.logger.Error("unable to send cpu load", zap.Error(err))
	}
	if err := m.memory.Send(homie.FloatWithPrecision(used, 1)); err != nil {
		m.logger.Error("unable to send memory usage", zap.Error(err))
	}
	if m.mode.Value() == "" {
		m.sendMode(modeNormal)
	}
}

func (m *hostMonitor) handleAlert(p *homie.Property, value string) {
	alert, err := strconv.ParseBool(value)
	if err != nil {
		m.logger.Warn("ignoring invalid alert value", zap.String("value", value))
		return
	}
	m.device.SetAlert(alert)
	if err := p.Send(homie.Boolean(m.device.State() == homie.StateAlert)); err != nil {
		m.logger.Error("unable to echo alert", zap.Error(err))
	}
}

func (m *hostMonitor) handleMode(_ *homie.Property, value string) {
	m.sendMode(value)
}

func (m *hostMonitor) sendMode(mode string) {
	if err := m.mode.Send(homie.EnumValue(mode)); err != nil {
		m.logger.Warn("ignoring mode", zap.String("mode", mode), zap.Error(err))
		return
	}
	m.logger.Info("mode changed", zap.String("mode", mode))
}
