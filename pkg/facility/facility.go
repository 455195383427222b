// Package facility composes the per-site simulation: the machines on the
// floor, the optional powder coating line, and the energy monitor.
package facility

import (
	"math/rand"
	"time"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/agv"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/coating"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/energy"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/machine"
)

// CellConfig places one machine in a site area.
type CellConfig struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type" yaml:"type"`
	Area  string `json:"area" yaml:"area"`
	OEM   string `json:"oem" yaml:"oem"`
	Model string `json:"model" yaml:"model"`
}

// Config describes one site.
type Config struct {
	SiteID      string `json:"site_id" yaml:"site_id"`
	Name        string `json:"name" yaml:"name"`
	Country     string `json:"country" yaml:"country"`
	CountryCode string `json:"country_code" yaml:"country_code"`
	City        string `json:"city" yaml:"city"`
	Timezone    string `json:"timezone" yaml:"timezone"`

	FacilityType string   `json:"facility_type" yaml:"facility_type"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	ShiftsPerDay int      `json:"shifts_per_day" yaml:"shifts_per_day"`
	PlantManager string   `json:"plant_manager" yaml:"plant_manager"`

	SolarCapacityKWp    float64 `json:"solar_capacity_kwp" yaml:"solar_capacity_kwp"`
	GridCarbonIntensity float64 `json:"grid_carbon_intensity_g_per_kwh" yaml:"grid_carbon_intensity_g_per_kwh"`

	Cells []CellConfig `json:"cells" yaml:"cells"`

	// RoutingTemplates are the cell-ID sequences new jobs follow at this
	// site. Empty entries are skipped at job creation.
	RoutingTemplates [][]string `json:"routing_templates" yaml:"routing_templates"`
}

// BuiltIn returns the three standard sites. Only the first is enabled at
// startup; the rest are switched on over the control channel.
func BuiltIn() []Config {
	return []Config{
		{
			SiteID:              "eindhoven",
			Name:                "Eindhoven HQ",
			Country:             "Netherlands",
			CountryCode:         "NL",
			City:                "Eindhoven",
			Timezone:            "Europe/Amsterdam",
			FacilityType:        "headquarters",
			Capabilities:        []string{"laser_cutting", "bending", "assembly", "logistics"},
			ShiftsPerDay:        2,
			PlantManager:        "H. van Leeuwen",
			SolarCapacityKWp:    230,
			GridCarbonIntensity: 380,
			Cells: []CellConfig{
				{ID: "laser_01", Name: "Laser 1", Type: "laser_cutter", Area: "cutting", OEM: "TRUMPF", Model: "TruLaser 3030"},
				{ID: "laser_02", Name: "Laser 2", Type: "laser_cutter", Area: "cutting", OEM: "TRUMPF", Model: "TruLaser 5030"},
				{ID: "press_brake_01", Name: "Press Brake 1", Type: "press_brake", Area: "forming", OEM: "Bystronic", Model: "Xpert 150"},
				{ID: "press_brake_02", Name: "Press Brake 2", Type: "press_brake", Area: "forming", OEM: "Bystronic", Model: "Xpert 320"},
				{ID: "assembly_01", Name: "Assembly 1", Type: "assembly", Area: "assembly"},
				{ID: "agv_01", Name: "AGV 1", Type: "agv", Area: "warehouse", OEM: "Still", Model: "iGo neo"},
				{ID: "agv_02", Name: "AGV 2", Type: "agv", Area: "warehouse", OEM: "Still", Model: "iGo neo"},
			},
			RoutingTemplates: [][]string{
				{"laser_01", "press_brake_01", "assembly_01"},
				{"laser_02", "press_brake_02", "assembly_01"},
				{"laser_01", "assembly_01"},
			},
		},
		{
			SiteID:              "roeselare",
			Name:                "Roeselare Works",
			Country:             "Belgium",
			CountryCode:         "BE",
			City:                "Roeselare",
			Timezone:            "Europe/Brussels",
			FacilityType:        "production_24_7",
			Capabilities:        []string{"laser_cutting", "bending", "robot_welding", "powder_coating", "assembly"},
			ShiftsPerDay:        3,
			PlantManager:        "E. Vandamme",
			SolarCapacityKWp:    180,
			GridCarbonIntensity: 160,
			Cells: []CellConfig{
				{ID: "laser_03", Name: "Laser 3", Type: "laser_cutter", Area: "cutting", OEM: "LVD", Model: "Phoenix FL-3015"},
				{ID: "laser_04", Name: "Laser 4", Type: "laser_cutter", Area: "cutting", OEM: "LVD", Model: "Phoenix FL-4020"},
				{ID: "press_brake_03", Name: "Press Brake 3", Type: "press_brake", Area: "forming", OEM: "LVD", Model: "Easy-Form 135"},
				{ID: "robot_weld_01", Name: "Robot Weld 1", Type: "robot_weld", Area: "welding", OEM: "ABB", Model: "IRB 1600"},
				{ID: "robot_weld_02", Name: "Robot Weld 2", Type: "robot_weld", Area: "welding", OEM: "ABB", Model: "IRB 2600"},
				{ID: "coating_line_01", Name: "Powder Coating Line", Type: "powder_coating_line", Area: "finishing", OEM: "Nordson", Model: "ColorMax 3"},
				{ID: "assembly_02", Name: "Assembly 2", Type: "assembly", Area: "assembly"},
			},
			RoutingTemplates: [][]string{
				{"laser_03", "press_brake_03", "robot_weld_01", "assembly_02"},
				{"laser_04", "robot_weld_02", "assembly_02"},
				{"laser_03", "press_brake_03", "assembly_02"},
			},
		},
		{
			SiteID:              "brasov",
			Name:                "Brasov Welding Center",
			Country:             "Romania",
			CountryCode:         "RO",
			City:                "Brasov",
			Timezone:            "Europe/Bucharest",
			FacilityType:        "welding_center",
			Capabilities:        []string{"robot_welding", "manual_welding", "assembly", "quality_control"},
			ShiftsPerDay:        2,
			PlantManager:        "D. Munteanu",
			SolarCapacityKWp:    50,
			GridCarbonIntensity: 260,
			Cells: []CellConfig{
				{ID: "robot_weld_03", Name: "Robot Weld 3", Type: "robot_weld", Area: "welding", OEM: "KUKA", Model: "KR 10 cybertech"},
				{ID: "robot_weld_04", Name: "Robot Weld 4", Type: "robot_weld", Area: "welding", OEM: "KUKA", Model: "KR 10 cybertech"},
				{ID: "robot_weld_05", Name: "Robot Weld 5", Type: "robot_weld", Area: "welding", OEM: "Fronius", Model: "TPS 400i"},
				{ID: "manual_weld_01", Name: "Manual Weld 1", Type: "manual_weld", Area: "welding"},
				{ID: "manual_weld_02", Name: "Manual Weld 2", Type: "manual_weld", Area: "welding"},
				{ID: "assembly_03", Name: "Assembly 3", Type: "assembly", Area: "assembly"},
				{ID: "assembly_04", Name: "Assembly 4", Type: "assembly", Area: "assembly"},
				{ID: "qc_01", Name: "Quality Control", Type: "quality_control", Area: "quality", OEM: "Zeiss", Model: "Contura G2"},
			},
			RoutingTemplates: [][]string{
				{"robot_weld_03", "assembly_03", "qc_01"},
				{"robot_weld_04", "assembly_04", "qc_01"},
				{"manual_weld_01", "assembly_03", "qc_01"},
			},
		},
	}
}

// Facility is the live simulation of one site.
type Facility struct {
	cfg      Config
	enabled  bool
	machines []*machine.Machine
	vehicles []*agv.Vehicle
	coating  *coating.Line
	energy   *energy.Monitor
}

// New builds a Facility from its configuration.
func New(cfg Config, rng *rand.Rand, now time.Time) *Facility {
	f := &Facility{
		cfg:    cfg,
		energy: energy.NewMonitor(energy.DefaultConfig(cfg.SiteID, cfg.SolarCapacityKWp, cfg.GridCarbonIntensity), rng),
	}
	for _, cell := range cfg.Cells {
		if cell.Type == "powder_coating_line" {
			f.coating = coating.NewLine(cell.ID, rng)
			continue
		}
		if cell.Type == "agv" {
			f.vehicles = append(f.vehicles, agv.NewVehicle(cell.ID, cell.Area, rng))
		}
		f.machines = append(f.machines, machine.New(machine.Config{
			ID:    cell.ID,
			Name:  cell.Name,
			Type:  cell.Type,
			Area:  cell.Area,
			OEM:   cell.OEM,
			Model: cell.Model,
		}, rng, now))
	}
	return f
}

// Tick advances every machine and the coating line by one step.
func (f *Facility) Tick(now time.Time, js machine.JobSource) {
	for _, m := range f.machines {
		m.Tick(now, js)
	}
	if f.coating != nil {
		f.coating.Tick()
	}
}

// Config returns the site configuration.
func (f *Facility) Config() Config { return f.cfg }

// SiteID returns the site identifier.
func (f *Facility) SiteID() string { return f.cfg.SiteID }

// Enabled reports whether the site publishes data.
func (f *Facility) Enabled() bool { return f.enabled }

// SetEnabled switches publication for the site.
func (f *Facility) SetEnabled(on bool) { f.enabled = on }

// Machines returns the site's machines.
func (f *Facility) Machines() []*machine.Machine { return f.machines }

// Vehicles returns the site's AGVs.
func (f *Facility) Vehicles() []*agv.Vehicle { return f.vehicles }

// Machine returns the machine with the given cell ID, or nil.
func (f *Facility) Machine(cellID string) *machine.Machine {
	for _, m := range f.machines {
		if m.ID() == cellID {
			return m
		}
	}
	return nil
}

// CoatingLine returns the site's coating line, or nil.
func (f *Facility) CoatingLine() *coating.Line { return f.coating }

// Energy returns the site's energy monitor.
func (f *Facility) Energy() *energy.Monitor { return f.energy }

// Routing picks a routing template for a new job.
func (f *Facility) Routing(rng *rand.Rand) []string {
	if len(f.cfg.RoutingTemplates) == 0 {
		return nil
	}
	return f.cfg.RoutingTemplates[rng.Intn(len(f.cfg.RoutingTemplates))]
}
