package homie

import (
	"strconv"

	"github.com/robfig/cron/v3"
)

// startStats replaces any running stats schedule with a fresh one firing every
// StatsInterval.
func (d *Device) startStats() {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(d.cfg.StatsInterval), cron.FuncJob(d.sendStats))

	d.mu.Lock()
	old := d.stats
	d.stats = c
	d.mu.Unlock()

	if old != nil {
		<-old.Stop().Done()
	}
	c.Start()
}

func (d *Device) stopStats() {
	d.mu.Lock()
	c := d.stats
	d.stats = nil
	d.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (d *Device) sendStats() {
	d.mu.Lock()
	uptime := int64(d.now().Sub(d.bootTime).Seconds())
	cpuTemperature, cpuLoad := d.cpuTemperature, d.cpuLoad
	d.mu.Unlock()

	d.publish("$stats/uptime", strconv.FormatInt(uptime, 10), true)
	if cpuTemperature != nil {
		d.publish("$stats/cputemp", cpuTemperature(), true)
	}
	if cpuLoad != nil {
		d.publish("$stats/cpuload", cpuLoad(), true)
	}
}
