package stella

import (
	"fmt"

	kitlog "github.com/go-kit/kit/log"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config assembles everything needed to construct a Simulator.
type Config struct {
	DT       float64 // s
	Duration float64 // s
	Seed     uint64

	InitialX, InitialY, InitialAltitude float64

	Waypoints        []Waypoint
	JamStart, JamEnd float64
	JamStrength      float64

	Sensors              SensorParams
	SymmetrizeCovariance bool

	Export ExportConfig
	Logger kitlog.Logger // nil means logfmt to stdout
}

// DefaultConfig returns the standard scenario: five waypoints starting from a
// 5 m hover at the origin, with GPS jammed from t=3s to t=6s.
func DefaultConfig() Config {
	return Config{
		DT:              0.1,
		Duration:        90,
		Seed:            1,
		InitialAltitude: 5,
		Waypoints:       DefaultWaypoints(),
		JamStart:        3,
		JamEnd:          6,
		JamStrength:     0.5,
		Sensors:         DefaultSensorParams(),
	}
}

// Validate checks the configuration for values the simulation cannot run with.
func (c Config) Validate() error {
	if c.DT <= 0 {
		return fmt.Errorf("timestep must be positive, got %f", c.DT)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", c.Duration)
	}
	if len(c.Waypoints) == 0 {
		return fmt.Errorf("at least one waypoint is required")
	}
	if c.JamEnd < c.JamStart {
		return fmt.Errorf("jamming window ends (%f) before it starts (%f)", c.JamEnd, c.JamStart)
	}
	return nil
}

// LoadScenario reads a scenario from the provided viper instance, overriding
// the defaults section by section. Expected layout:
//
//	[mission]
//	dt = 0.1
//	duration = 90.0
//	waypoints = [[20.0, 10.0, 5.0], [40.0, 20.0, 5.0]]
//
//	[vehicle]
//	x = 0.0
//	y = 0.0
//	altitude = 5.0
//
//	[jamming]
//	start = 3.0
//	end = 6.0
//	strength = 0.5
//
//	[sensors]
//	gpsNoise = 0.5
//	flowNoise = 0.1
//
//	[sim]
//	seed = 42
func LoadScenario(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("mission.dt") {
		cfg.DT = v.GetFloat64("mission.dt")
	}
	if v.IsSet("mission.duration") {
		cfg.Duration = v.GetFloat64("mission.duration")
	}
	if v.IsSet("mission.waypoints") {
		wps, err := parseWaypoints(v.Get("mission.waypoints"))
		if err != nil {
			return cfg, err
		}
		cfg.Waypoints = wps
	}

	cfg.InitialX = v.GetFloat64("vehicle.x")
	cfg.InitialY = v.GetFloat64("vehicle.y")
	if v.IsSet("vehicle.altitude") {
		cfg.InitialAltitude = v.GetFloat64("vehicle.altitude")
	}

	if v.IsSet("jamming.start") {
		cfg.JamStart = v.GetFloat64("jamming.start")
	}
	if v.IsSet("jamming.end") {
		cfg.JamEnd = v.GetFloat64("jamming.end")
	}
	if v.IsSet("jamming.strength") {
		cfg.JamStrength = v.GetFloat64("jamming.strength")
	}

	if v.IsSet("sensors.gpsNoise") {
		cfg.Sensors.GPSNoiseStd = v.GetFloat64("sensors.gpsNoise")
	}
	if v.IsSet("sensors.accelNoise") {
		cfg.Sensors.AccelNoiseStd = v.GetFloat64("sensors.accelNoise")
	}
	if v.IsSet("sensors.gyroNoise") {
		cfg.Sensors.GyroNoiseStd = v.GetFloat64("sensors.gyroNoise")
	}
	if v.IsSet("sensors.magNoise") {
		cfg.Sensors.MagNoiseStd = v.GetFloat64("sensors.magNoise")
	}
	if v.IsSet("sensors.magDeclination") {
		cfg.Sensors.MagDeclination = v.GetFloat64("sensors.magDeclination")
	}
	if v.IsSet("sensors.baroNoise") {
		cfg.Sensors.BaroNoiseStd = v.GetFloat64("sensors.baroNoise")
	}
	if v.IsSet("sensors.flowNoise") {
		cfg.Sensors.FlowNoiseStd = v.GetFloat64("sensors.flowNoise")
	}

	if v.IsSet("sim.seed") {
		cfg.Seed = v.GetUint64("sim.seed")
	}
	cfg.SymmetrizeCovariance = v.GetBool("sim.symmetrizeCovariance")

	return cfg, cfg.Validate()
}

// parseWaypoints converts the raw viper value of mission.waypoints, an array
// of [x, y, z] arrays, into waypoints.
func parseWaypoints(raw interface{}) ([]Waypoint, error) {
	rows, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("waypoints must be an array of [x, y, z] arrays, got %T", raw)
	}
	wps := make([]Waypoint, len(rows))
	for i, row := range rows {
		coords, ok := row.([]interface{})
		if !ok || len(coords) != 3 {
			return nil, fmt.Errorf("waypoint %d must be an [x, y, z] array, got %v", i, row)
		}
		x, err := cast.ToFloat64E(coords[0])
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		y, err := cast.ToFloat64E(coords[1])
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		z, err := cast.ToFloat64E(coords[2])
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		wps[i] = Waypoint{x, y, z}
	}
	return wps, nil
}
