// Package energy models site-level electrical consumption, rooftop solar
// generation and the derived grid import and cost figures.
package energy

import (
	"math"
	"math/rand"
	"time"
)

// Tariffs in EUR per kWh used for the cost dashboard.
const (
	GridTariffEUR = 0.15
	FeedInRateEUR = 0.08
)

// Config configures a site's energy monitor.
type Config struct {
	SiteID string

	// SolarCapacityKWp is the installed rooftop capacity.
	SolarCapacityKWp float64

	// GridCarbonIntensity is grams CO2 per kWh of grid import.
	GridCarbonIntensity float64

	// DayConsumption and NightConsumption bound the base load in kW.
	DayConsumptionMinKW   float64
	DayConsumptionMaxKW   float64
	NightConsumptionMinKW float64
	NightConsumptionMaxKW float64
}

// DefaultConfig returns the standard consumption envelope for a site.
func DefaultConfig(siteID string, solarKWp, carbonIntensity float64) Config {
	return Config{
		SiteID:                siteID,
		SolarCapacityKWp:      solarKWp,
		GridCarbonIntensity:   carbonIntensity,
		DayConsumptionMinKW:   80,
		DayConsumptionMaxKW:   150,
		NightConsumptionMinKW: 20,
		NightConsumptionMaxKW: 40,
	}
}

// Sample is one instantaneous energy snapshot plus running daily totals.
type Sample struct {
	ConsumptionKW float64 `json:"consumption_kw"`
	SolarKW       float64 `json:"solar_kw"`
	GridImportKW  float64 `json:"grid_import_kw"`

	DailyConsumptionKWH float64 `json:"daily_consumption_kwh"`
	DailySolarKWH       float64 `json:"daily_solar_kwh"`
	DailyCostEUR        float64 `json:"daily_cost_eur"`
	DailySavingsEUR     float64 `json:"daily_savings_eur"`
	CarbonKG            float64 `json:"carbon_kg"`
}

// Monitor accumulates energy figures across ticks. Not safe for
// concurrent use; the tick loop owns it.
type Monitor struct {
	cfg  Config
	rng  *rand.Rand
	last time.Time

	dailyConsumptionKWH float64
	dailySolarKWH       float64
	dailyGridKWH        float64
	day                 int
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, rng *rand.Rand) *Monitor {
	return &Monitor{cfg: cfg, rng: rng}
}

// Tick samples consumption and generation at now and advances the daily
// accumulators. Daily totals roll over at midnight local to now.
func (m *Monitor) Tick(now time.Time) Sample {
	if now.YearDay() != m.day {
		m.day = now.YearDay()
		m.dailyConsumptionKWH = 0
		m.dailySolarKWH = 0
		m.dailyGridKWH = 0
		m.last = time.Time{}
	}

	hour := float64(now.Hour()) + float64(now.Minute())/60

	var cons float64
	if hour >= 6 && hour < 22 {
		cons = m.cfg.DayConsumptionMinKW + m.rng.Float64()*(m.cfg.DayConsumptionMaxKW-m.cfg.DayConsumptionMinKW)
	} else {
		cons = m.cfg.NightConsumptionMinKW + m.rng.Float64()*(m.cfg.NightConsumptionMaxKW-m.cfg.NightConsumptionMinKW)
	}

	solar := m.solarOutput(hour)
	grid := math.Max(0, cons-solar)

	if !m.last.IsZero() {
		hours := now.Sub(m.last).Hours()
		m.dailyConsumptionKWH += cons * hours
		m.dailySolarKWH += solar * hours
		m.dailyGridKWH += grid * hours
	}
	m.last = now

	return Sample{
		ConsumptionKW:       round2(cons),
		SolarKW:             round2(solar),
		GridImportKW:        round2(grid),
		DailyConsumptionKWH: round2(m.dailyConsumptionKWH),
		DailySolarKWH:       round2(m.dailySolarKWH),
		DailyCostEUR:        round2(m.dailyConsumptionKWH*GridTariffEUR - m.dailySolarKWH*FeedInRateEUR),
		DailySavingsEUR:     round2(m.dailySolarKWH * FeedInRateEUR),
		CarbonKG:            round2(m.dailyGridKWH * m.cfg.GridCarbonIntensity / 1000),
	}
}

// solarOutput follows a bell curve peaking around 13:00, scaled by the
// installed capacity and a cloud-cover factor.
func (m *Monitor) solarOutput(hour float64) float64 {
	if m.cfg.SolarCapacityKWp == 0 || hour < 6 || hour > 20 {
		return 0
	}
	bell := math.Exp(-math.Pow(hour-13, 2) / 18)
	clouds := 0.7 + m.rng.Float64()*0.25
	return m.cfg.SolarCapacityKWp * bell * clouds
}

// Config returns the monitor's configuration.
func (m *Monitor) Config() Config { return m.cfg }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
