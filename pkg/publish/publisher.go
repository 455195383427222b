// Package publish maps simulation state onto UNS topics.
//
// The Publisher owns the topic layout and the complexity level each topic
// requires; the broker client enforces the gate, so callers publish
// unconditionally and let messages below the active level drop.
package publish

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/agv"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/broker"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/coating"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/complexity"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/dpp"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/energy"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/facility"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/jobs"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/machine"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// Config holds the topic-layout knobs.
type Config struct {
	// Prefix is the leading topic segment pair, normally "umh/v1".
	Prefix string `json:"prefix" yaml:"prefix"`

	// Enterprise is the enterprise segment of every UNS topic.
	Enterprise string `json:"enterprise" yaml:"enterprise"`
}

// DefaultConfig returns the standard layout.
func DefaultConfig() Config {
	return Config{Prefix: uns.DefaultPrefix, Enterprise: "metalfab"}
}

// Publisher builds and enqueues UNS messages for one simulation tick.
type Publisher struct {
	cfg    Config
	client *broker.Client
	log    *zap.Logger
}

// New creates a Publisher.
func New(cfg Config, client *broker.Client, log *zap.Logger) *Publisher {
	if cfg.Prefix == "" {
		cfg.Prefix = uns.DefaultPrefix
	}
	if cfg.Enterprise == "" {
		cfg.Enterprise = "metalfab"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{cfg: cfg, client: client, log: log}
}

func (p *Publisher) publish(topic string, v any, lvl complexity.Level) {
	msg, err := uns.NewValueMessage(topic, v)
	if err != nil {
		p.log.Warn("encode failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	p.client.Publish(msg, lvl)
}

func (p *Publisher) addr(siteID string, m *machine.Machine) uns.Address {
	return uns.Address{
		Enterprise: p.cfg.Enterprise,
		Site:       siteID,
		Area:       m.Area(),
		Cell:       m.ID(),
	}
}

// Descriptive publishes the static Asset namespace for every cell of a
// site. Called once when a site comes online; the topics are retained so
// the values survive between publications.
func (p *Publisher) Descriptive(f *facility.Facility) {
	site := f.Config()
	for _, m := range f.Machines() {
		addr := p.addr(site.SiteID, m)
		asset := m.Asset()
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "Name"), m.Name(), complexity.LevelSensors)
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "Type"), m.Type(), complexity.LevelSensors)
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "AssetID"), asset.AssetID, complexity.LevelSensors)
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "SerialNumber"), asset.SerialNumber, complexity.LevelSensors)
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "InService"), asset.InService, complexity.LevelSensors)
		if asset.OEM != "" {
			p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "OEM"), asset.OEM, complexity.LevelSensors)
			p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "Model"), asset.Model, complexity.LevelSensors)
		}
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceAsset, "IdealRatePerHour"), m.IdealRate(), complexity.LevelSensors)
	}
	p.publish(
		uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, site.SiteID, uns.NamespaceAsset, "Site"),
		map[string]any{
			"name":           site.Name,
			"country":        site.Country,
			"city":           site.City,
			"timezone":       site.Timezone,
			"facility_type":  site.FacilityType,
			"capabilities":   site.Capabilities,
			"shifts_per_day": site.ShiftsPerDay,
			"plant_manager":  site.PlantManager,
		},
		complexity.LevelSensors,
	)
}

// Machine publishes one cell's functional data for the current tick.
func (p *Publisher) Machine(siteID string, m *machine.Machine, now time.Time) {
	addr := p.addr(siteID, m)
	feats := complexity.FeaturesFor(p.client.Level())

	// Edge sensor tags with a snake_case historian mirror.
	for tag, reading := range m.Readings() {
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, tag), reading.Value, complexity.LevelSensors)
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceRaw, uns.SnakeCase(tag)), reading, complexity.LevelSensors)
	}

	// PackML state and production counters.
	state := m.State()
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "State"), state.Number(), complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "StateName"), state.String(), complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceRaw, "state"), state.Number(), complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceRaw, "state_name"), state.String(), complexity.LevelStateful)

	if stop := m.Stop(); stop != nil {
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "StopReason"), stop, complexity.LevelStateful)
	}

	infeed, outfeed, waste, produced, scrap := m.Counters()
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "Infeed"), infeed, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "Outfeed"), outfeed, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "Waste"), waste, complexity.LevelStateful)

	// Line counters and the OEE triple, retained for dashboards.
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "Infeed"), infeed, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "Outfeed"), outfeed, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "Waste"), waste, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "PartsProduced"), produced, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "PartsScrap"), scrap, complexity.LevelStateful)

	oee := m.OEE()
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "OEE", "Availability"), oee.Availability, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "OEE", "Performance"), oee.Performance, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "OEE", "Quality"), oee.Quality, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "OEE", "OEE"), oee.OEE, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "OEE", "DowntimeMinutes"), oee.DowntimeMinutes, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "OEE", "IdleMinutes"), oee.IdleMinutes, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "OEE", "ShiftDurationMinutes"), oee.ShiftDurationMinutes, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceRaw, "oee"), oee, complexity.LevelStateful)

	// Retained shop-floor aggregate with job context. ERP cost fields ride
	// along only once the business layer is on.
	shopFloor := map[string]any{
		"timestamp_ms": now.UnixMilli(),
		"cell_id":      m.ID(),
		"state":        state.String(),
		"sub_state":    string(m.SubState()),
		"oee":          oee,
	}
	if j := m.Job(); j != nil {
		jobCtx := map[string]any{
			"job_id":       j.ID,
			"work_order":   j.WorkOrder,
			"product_name": j.ProductName,
			"qty_target":   j.QtyTarget,
			"qty_complete": j.QtyComplete,
			"progress_pct": j.ProgressPct(),
			"priority":     j.Priority,
			"operator":     j.Operator,
		}
		if feats.ERPJobData {
			jobCtx["customer"] = j.Customer
			jobCtx["material"] = j.Material
			jobCtx["estimated_hours"] = j.EstimatedHours
			jobCtx["labor_cost_eur"] = j.LaborCostEUR
			jobCtx["margin_pct"] = j.MarginPct
			jobCtx["delivery_status"] = j.DeliveryStatus(now)
		}
		shopFloor["job"] = jobCtx
	}
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "ShopFloor"), shopFloor, complexity.LevelStateful)

	// Dashboard summaries, level 3 and up.
	if !feats.Dashboards {
		return
	}
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceDashboard, "Asset"), map[string]any{
		"name":       m.Name(),
		"type":       m.Type(),
		"state":      state.String(),
		"producing":  state.IsProducing(),
		"ideal_rate": m.IdealRate(),
	}, complexity.LevelERPMES)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceDashboard, "OEE"), oee, complexity.LevelERPMES)
	if j := m.Job(); j != nil {
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceDashboard, "Job"), j, complexity.LevelERPMES)
	}
}

// Coating publishes the powder coating line snapshot for a site.
func (p *Publisher) Coating(siteID string, st coating.State) {
	addr := uns.Address{Enterprise: p.cfg.Enterprise, Site: siteID, Area: "finishing", Cell: st.LineID}
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "OvenTemp"), st.OvenTempC, complexity.LevelSensors)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "ConveyorSpeed"), st.ConveyorMPM, complexity.LevelSensors)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "BoothColor"), st.BoothColor, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "CarriersInLine"), st.TraversalsInLine, complexity.LevelStateful)
	for zone, n := range st.ZoneCounts {
		p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "Zone", zone), n, complexity.LevelStateful)
	}
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "CompletedToday"), st.CompletedToday, complexity.LevelStateful)
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceLine, "ColorChanges"), st.ColorChanges, complexity.LevelStateful)
}

// AGV publishes one vehicle's position snapshot: a streaming update on the
// vehicle's own cell and a retained site-level fleet view for dashboards.
func (p *Publisher) AGV(siteID string, v *agv.Vehicle) {
	if !complexity.FeaturesFor(p.client.Level()).AGVPositions {
		return
	}
	st := v.State()
	addr := uns.Address{Enterprise: p.cfg.Enterprise, Site: siteID, Area: v.Area(), Cell: v.ID()}
	p.publish(uns.CellTopic(p.cfg.Prefix, addr, uns.NamespaceEdge, "Position"), st, complexity.LevelStateful)
	p.publish(
		uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceLine, "AGVFleet", v.ID()),
		st,
		complexity.LevelStateful,
	)
}

// Energy publishes a site's energy sample.
func (p *Publisher) Energy(siteID string, s energy.Sample) {
	base := func(fields ...string) string {
		return uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceEdge, append([]string{"Energy"}, fields...)...)
	}
	p.publish(base("ConsumptionKW"), s.ConsumptionKW, complexity.LevelSensors)
	p.publish(base("SolarKW"), s.SolarKW, complexity.LevelSensors)
	p.publish(base("GridImportKW"), s.GridImportKW, complexity.LevelSensors)
	p.publish(base("DailyConsumptionKWH"), s.DailyConsumptionKWH, complexity.LevelSensors)
	p.publish(base("DailySolarKWH"), s.DailySolarKWH, complexity.LevelSensors)
	p.publish(base("DailyCostEUR"), s.DailyCostEUR, complexity.LevelERPMES)
	p.publish(base("DailySavingsEUR"), s.DailySavingsEUR, complexity.LevelERPMES)
	p.publish(base("CarbonKG"), s.CarbonKG, complexity.LevelERPMES)

	raw := func(field string) string {
		return uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceRaw, "energy", field)
	}
	p.publish(raw("consumption_kw"), s.ConsumptionKW, complexity.LevelSensors)
	p.publish(raw("solar_kw"), s.SolarKW, complexity.LevelSensors)
	p.publish(raw("grid_import_kw"), s.GridImportKW, complexity.LevelSensors)

	p.publish(
		uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceLine, "Energy", "Daily"),
		s,
		complexity.LevelStateful,
	)

	p.publish(
		uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceDashboard, "Energy"),
		map[string]any{
			"consumption_kw":        s.ConsumptionKW,
			"solar_kw":              s.SolarKW,
			"grid_import_kw":        s.GridImportKW,
			"solar_share_pct":       solarSharePct(s),
			"daily_cost_eur":        s.DailyCostEUR,
			"daily_savings_eur":     s.DailySavingsEUR,
			"daily_carbon_kg":       s.CarbonKG,
			"daily_consumption_kwh": s.DailyConsumptionKWH,
		},
		complexity.LevelERPMES,
	)
}

func solarSharePct(s energy.Sample) float64 {
	if s.ConsumptionKW <= 0 {
		return 0
	}
	share := s.SolarKW / s.ConsumptionKW * 100
	if share > 100 {
		share = 100
	}
	return math.Round(share*10) / 10
}

// ERP publishes the site-level ERP aggregates: one production order per
// executing cell, a stochastic new sales order event, and the material
// inventory.
func (p *Publisher) ERP(f *facility.Facility, rng *rand.Rand, now time.Time) {
	siteID := f.SiteID()
	for _, m := range f.Machines() {
		j := m.Job()
		if j == nil || !m.State().IsProducing() {
			continue
		}
		p.publish(
			uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceERP, "ProductionOrder", m.ID()),
			map[string]any{
				"work_order":      j.WorkOrder,
				"job_id":          j.ID,
				"customer":        j.Customer,
				"product_name":    j.ProductName,
				"qty_target":      j.QtyTarget,
				"qty_complete":    j.QtyComplete,
				"estimated_hours": j.EstimatedHours,
				"labor_cost_eur":  j.LaborCostEUR,
				"margin_pct":      j.MarginPct,
				"due_date":        j.DueDate,
				"status":          j.Status,
			},
			complexity.LevelERPMES,
		)
	}

	if rng.Float64() < 0.5 {
		mat := jobs.Materials[rng.Intn(len(jobs.Materials))]
		p.publish(
			uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceERP, "SalesOrder", "New"),
			map[string]any{
				"order_id":  fmt.Sprintf("SO-%d-%04d", now.Year(), 1000+rng.Intn(9000)),
				"material":  mat.Code,
				"qty":       50 + rng.Intn(451),
				"timestamp": now,
			},
			complexity.LevelERPMES,
		)
	}

	for _, mat := range jobs.Materials {
		sheets := 200 + rng.Intn(1800)
		p.publish(
			uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceERP, "Inventory", mat.Code),
			map[string]any{
				"material":       mat.Code,
				"gauge_mm":       mat.GaugeMM,
				"sheets_on_hand": sheets,
				"reorder_point":  250,
				"on_order":       sheets < 400,
			},
			complexity.LevelERPMES,
		)
	}
}

// MES publishes the site-level MES aggregates.
func (p *Publisher) MES(f *facility.Facility, rng *rand.Rand, now time.Time) {
	siteID := f.SiteID()
	feats := complexity.FeaturesFor(p.client.Level())

	producing, wip := 0, 0
	var oeeSum float64
	bottleneck := ""
	worstOEE := math.Inf(1)
	machines := f.Machines()
	for _, m := range machines {
		if m.State().IsProducing() {
			producing++
		}
		if m.Job() != nil {
			wip++
		}
		oee := m.OEE().OEE
		oeeSum += oee
		if oee < worstOEE {
			worstOEE = oee
			bottleneck = m.ID()
		}
	}
	utilizationPct := 0.0
	if len(machines) > 0 {
		utilizationPct = math.Round(float64(producing)/float64(len(machines))*1000) / 10
	}

	if feats.MESQuality {
		p.publish(uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceMES, "Quality"), map[string]any{
			"first_pass_yield_pct": 94 + rng.Float64()*5,
			"timestamp_ms":         now.UnixMilli(),
		}, complexity.LevelERPMES)
	}

	if feats.Delivery {
		onTime, late := 0, 0
		for _, m := range machines {
			if j := m.Job(); j != nil {
				if j.DeliveryStatus(now) == "LATE" {
					late++
				} else {
					onTime++
				}
			}
		}
		p.publish(uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceMES, "Delivery"), map[string]any{
			"on_time": onTime,
			"late":    late,
		}, complexity.LevelERPMES)
	}

	if feats.MESOEE {
		// The bottleneck is the machine with the worst OEE on the floor.
		p.publish(uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceMES, "Utilization"), map[string]any{
			"fleet_utilization_pct": utilizationPct,
			"bottleneck_machine":    bottleneck,
		}, complexity.LevelERPMES)
		if len(machines) > 0 {
			p.publish(uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceMES, "AvgOEE"), oeeSum/float64(len(machines)), complexity.LevelERPMES)
		}
	}
	if feats.InventoryWIP {
		p.publish(uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceMES, "WIP"), wip, complexity.LevelERPMES)
	}
}

// Passport publishes a digital product passport, retained.
func (p *Publisher) Passport(siteID string, pass *dpp.Passport) {
	p.publish(
		uns.SiteTopic(p.cfg.Prefix, p.cfg.Enterprise, siteID, uns.NamespaceDPP, pass.ID),
		pass,
		complexity.LevelFull,
	)
}

// TopicPatterns returns the doublestar patterns covering everything this
// publisher may have retained for a site. Used when a site is disabled or
// the namespace is cleared.
func (p *Publisher) TopicPatterns(siteID string) []string {
	return []string{
		fmt.Sprintf("%s/%s/%s/**", p.cfg.Prefix, p.cfg.Enterprise, siteID),
	}
}

// SubscribeFilter returns the MQTT filter covering the whole enterprise
// subtree, for retained-topic discovery.
func (p *Publisher) SubscribeFilter() string {
	return p.cfg.Prefix + "/" + p.cfg.Enterprise + "/#"
}
