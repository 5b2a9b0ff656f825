package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"github.com/stella-nav/stella"
)

// This command reads a scenario file, runs the mission and reports the results.

const defaultScenario = "~~unset~~"

var (
	scenario string
	csvOut   string
	duration float64
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "scenario TOML file (omit for the default mission)")
	flag.StringVar(&csvOut, "csv", "", "export the trajectory to this CSV file")
	flag.Float64Var(&duration, "duration", 0, "override the mission duration in seconds")
	flag.BoolVar(&verbose, "verbose", false, "really verbose (esp. for configuration)")
}

func main() {
	flag.Parse()

	cfg := stella.DefaultConfig()
	if scenario != defaultScenario {
		scenario = strings.Replace(scenario, ".toml", "", 1)
		viper.AddConfigPath(".")
		viper.SetConfigName(scenario)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("./%s.toml: Error %s", scenario, err)
		}
		var err error
		cfg, err = stella.LoadScenario(viper.GetViper())
		if err != nil {
			log.Fatalf("invalid scenario: %s", err)
		}
	}
	if duration > 0 {
		cfg.Duration = duration
	}
	if csvOut != "" {
		cfg.Export = stella.ExportConfig{Filename: csvOut, AsCSV: true, Timestamp: true}
	}
	if verbose {
		log.Printf("[conf] dt: %fs duration: %fs waypoints: %d jamming: [%g, %g) strength: %g seed: %d\n",
			cfg.DT, cfg.Duration, len(cfg.Waypoints), cfg.JamStart, cfg.JamEnd, cfg.JamStrength, cfg.Seed)
	}

	sim, err := stella.NewSimulator(cfg)
	if err != nil {
		log.Fatalf("could not build simulator: %s", err)
	}
	results, err := sim.Run(cfg.Duration)
	if err != nil {
		log.Fatalf("simulation failed: %s", err)
	}

	m := results.Metrics
	fmt.Printf("\n=== mission %s ===\n", results.Status)
	fmt.Printf("waypoints reached: %d/%d\n", m.WaypointsReached, m.TotalWaypoints)
	fmt.Printf("success rate:      %.2f%%\n", m.MissionSuccessRate)
	fmt.Printf("max position err:  %.2f m\n", m.MaxPositionError)
	fmt.Printf("final confidence:  %.2f%%\n", m.FinalConfidence)
	fmt.Printf("total distance:    %.2f m\n", m.TotalDistance)

	ja := results.Jamming
	fmt.Printf("\n=== GPS denial [%gs, %gs) ===\n", ja.JamStart, ja.JamEnd)
	fmt.Printf("error before jam:  %.2f m\n", ja.ErrorBeforeJam)
	fmt.Printf("peak during jam:   %.2f m\n", ja.PeakErrorDuringJam)
	fmt.Printf("error at end:      %.2f m\n", ja.ErrorAfterRecovery)
	fmt.Printf("mean before/during/after: %.2f / %.2f / %.2f m\n",
		ja.MeanErrorBefore, ja.MeanErrorDuring, ja.MeanErrorAfter)
	fmt.Printf("recovery time:     %.1f s\n", ja.RecoveryTime)
}
