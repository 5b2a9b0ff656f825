package stella

import (
	"math"
	"os"
	"sync"

	kitlog "github.com/go-kit/kit/log"
	"github.com/google/uuid"
)

var wg sync.WaitGroup

// Snapshot is the point-in-time view of the simulation assembled after each
// tick. Confidence and progress are on a 0-100 scale; everything else is in
// SI units and radians.
type Snapshot struct {
	Time              float64
	TruePosition      [2]float64
	EstimatedPosition [2]float64
	Velocity          [2]float64
	Heading           float64
	Altitude          float64
	GPSAvailable      bool
	NavigationMode    NavMode
	Error             float64
	Confidence        float64
	CurrentWaypoint   [2]float64
	MissionProgress   float64
}

// TrajectoryPoint is one entry of the append-only trajectory log.
type TrajectoryPoint struct {
	Time       float64
	TrueX      float64
	TrueY      float64
	EstX       float64
	EstY       float64
	Error      float64
	Confidence float64 // 0-100
	GPSStatus  string  // ACTIVE or JAMMED
	NavMode    NavMode
}

// Metrics summarizes a mission. Rates and confidence are on a 0-100 scale.
type Metrics struct {
	WaypointsReached   int
	TotalWaypoints     int
	MissionSuccessRate float64
	MaxPositionError   float64
	FinalConfidence    float64
	TotalDistance      float64
}

// JammingAnalysis summarizes the estimator's behavior around the jamming
// window: the error just before denial, the peak during it, the error at the
// end of the log, and per-phase means.
type JammingAnalysis struct {
	JamStart           float64
	JamEnd             float64
	ErrorBeforeJam     float64
	PeakErrorDuringJam float64
	ErrorAfterRecovery float64
	RecoveryTime       float64
	MeanErrorBefore    float64
	MeanErrorDuring    float64
	MeanErrorAfter     float64
}

// Results is the aggregate bundle returned by Run.
type Results struct {
	Status        string // "success" once the mission completed, else "running"
	Trajectory    []TrajectoryPoint
	Metrics       Metrics
	Jamming       JammingAnalysis
	CurrentState  Snapshot
	MissionStatus MissionStatus
}

// Simulator composes the vehicle, sensor suite, navigation filter and mission
// controller into one fixed-timestep loop. It owns all mutable state
// exclusively: a single instance must not be stepped concurrently, but
// independent instances are free to run in parallel.
type Simulator struct {
	ID      uuid.UUID
	Vehicle *Vehicle
	Sensors *Sensors
	Nav     *Navigator
	Mission *Mission

	Time float64

	dt          float64
	jamStrength float64

	trajectory []TrajectoryPoint
	current    Snapshot

	logger    kitlog.Logger
	histChan  chan TrajectoryPoint
	closeOnce sync.Once
}

// NewDefaultSimulator returns a simulator over the default scenario.
func NewDefaultSimulator() *Simulator {
	s, err := NewSimulator(DefaultConfig())
	if err != nil {
		panic(err) // the default config always validates
	}
	return s
}

// NewSimulator builds a simulator from the given configuration.
func NewSimulator(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	logger := cfg.Logger
	if logger == nil {
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	}
	logger = kitlog.With(logger, "run", id.String())

	vehicle := NewVehicle()
	vehicle.SetState(cfg.InitialX, cfg.InitialY, cfg.InitialAltitude, 0, 0, 0, 0)

	nav := NewNavigator(cfg.DT)
	nav.SetState(cfg.InitialX, cfg.InitialY, 0, 0)
	nav.SymmetrizeCovariance = cfg.SymmetrizeCovariance

	mission := NewMission(cfg.Waypoints, cfg.Duration, cfg.JamStart, cfg.JamEnd)

	s := &Simulator{
		ID:          id,
		Vehicle:     vehicle,
		Sensors:     NewSensors(cfg.Sensors, cfg.DT, cfg.Seed),
		Nav:         nav,
		Mission:     mission,
		dt:          cfg.DT,
		jamStrength: cfg.JamStrength,
		logger:      logger,
	}

	wp := mission.CurrentWaypoint()
	vehicle.SetTarget(&wp)

	if !cfg.Export.IsUseless() {
		s.histChan = make(chan TrajectoryPoint, 1000)
		wg.Add(1)
		go func() {
			defer wg.Done()
			StreamTrajectory(cfg.Export, id.String(), s.histChan)
		}()
	}

	s.logger.Log("level", "info", "subsys", "sim", "msg", "simulation ready",
		"waypoints", len(cfg.Waypoints), "dt", cfg.DT, "jamStart", cfg.JamStart, "jamEnd", cfg.JamEnd)
	return s, nil
}

// Step advances the simulation by one tick: predict, measure, fuse, fly,
// update the mission, and record a snapshot. The returned error only ever
// comes from the GPS fusion path, which must not silently corrupt the filter.
func (s *Simulator) Step() (Snapshot, error) {
	// Ground truth at the top of the tick.
	trueX, trueY, trueZ := s.Vehicle.PosX, s.Vehicle.PosY, s.Vehicle.Altitude
	trueVX, trueVY := s.Vehicle.VelX, s.Vehicle.VelY
	trueHeading := s.Vehicle.Heading
	wasJammed := s.Mission.Jammed
	prevReached := s.Mission.WaypointsReached

	s.Nav.Predict()

	s.Sensors.SetJamming(s.Mission.Jammed, s.jamStrength)
	meas := s.Sensors.MeasureAll(s.Vehicle)

	if meas.GPS.Valid {
		if err := s.Nav.UpdateGPS(meas.GPS.X, meas.GPS.Y, meas.GPS.Z); err != nil {
			return Snapshot{}, err
		}
		s.Mission.Mode = ModeGPS
	} else {
		s.Mission.Mode = ModeSensor
	}

	if meas.Flow.Valid {
		if err := s.Nav.UpdateOpticalFlow(meas.Flow.VX, meas.Flow.VY); err != nil {
			return Snapshot{}, err
		}
	}

	wp := s.Mission.CurrentWaypoint()
	s.Vehicle.SetTarget(&wp)
	s.Vehicle.Step(s.dt)

	s.Mission.Update(s.dt, trueX, trueY, trueZ)

	estX, estY, _, _ := s.Nav.State()
	posErr := norm2(estX-trueX, estY-trueY)
	s.Mission.UpdateError(posErr)

	if s.Mission.Jammed != wasJammed {
		if s.Mission.Jammed {
			s.logger.Log("level", "warning", "subsys", "mission", "msg", "GPS jamming started", "t", s.Mission.Elapsed)
		} else {
			s.logger.Log("level", "info", "subsys", "mission", "msg", "GPS jamming ended", "t", s.Mission.Elapsed)
		}
	}
	if s.Mission.WaypointsReached > prevReached {
		s.logger.Log("level", "info", "subsys", "mission", "msg", "waypoint reached",
			"index", s.Mission.WaypointIndex, "t", s.Mission.Elapsed)
	}

	gpsStatus := "JAMMED"
	if meas.GPS.Valid {
		gpsStatus = "ACTIVE"
	}
	confidence := s.Nav.Confidence() * 100

	curWP := s.Mission.CurrentWaypoint()
	s.current = Snapshot{
		Time:              s.Time,
		TruePosition:      [2]float64{trueX, trueY},
		EstimatedPosition: [2]float64{estX, estY},
		Velocity:          [2]float64{trueVX, trueVY},
		Heading:           trueHeading,
		Altitude:          trueZ,
		GPSAvailable:      meas.GPS.Valid,
		NavigationMode:    s.Mission.Mode,
		Error:             posErr,
		Confidence:        confidence,
		CurrentWaypoint:   [2]float64{curWP.X, curWP.Y},
		MissionProgress:   s.Mission.Progress() * 100,
	}

	pt := TrajectoryPoint{
		Time:       s.Time,
		TrueX:      trueX,
		TrueY:      trueY,
		EstX:       estX,
		EstY:       estY,
		Error:      posErr,
		Confidence: confidence,
		GPSStatus:  gpsStatus,
		NavMode:    s.Mission.Mode,
	}
	s.trajectory = append(s.trajectory, pt)
	if s.histChan != nil {
		s.histChan <- pt
	}

	s.Time += s.dt
	return s.current, nil
}

// Run steps the simulation until the duration is covered or the mission goes
// inactive, then returns the aggregate results. Any configured trajectory
// export is flushed and closed before returning.
func (s *Simulator) Run(duration float64) (Results, error) {
	steps := int(math.Round(duration / s.dt))
	for i := 0; i < steps; i++ {
		if _, err := s.Step(); err != nil {
			s.CloseExport()
			return Results{}, err
		}
		if !s.Mission.Active {
			break
		}
	}
	s.CloseExport()
	return s.Results(), nil
}

// CloseExport flushes and closes the trajectory export stream, if any. Safe to
// call more than once; Run calls it automatically.
func (s *Simulator) CloseExport() {
	s.closeOnce.Do(func() {
		if s.histChan != nil {
			close(s.histChan)
			wg.Wait()
		}
	})
}

// CurrentState returns the snapshot of the latest tick.
func (s *Simulator) CurrentState() Snapshot {
	return s.current
}

// TrajectoryData returns the full per-tick log. The log is append-only; the
// only way to restart is to construct a new Simulator.
func (s *Simulator) TrajectoryData() []TrajectoryPoint {
	return s.trajectory
}

// GetMetrics assembles the mission-level metrics.
func (s *Simulator) GetMetrics() Metrics {
	return Metrics{
		WaypointsReached:   s.Mission.WaypointsReached,
		TotalWaypoints:     len(s.Mission.Waypoints),
		MissionSuccessRate: s.Mission.SuccessRate() * 100,
		MaxPositionError:   s.Mission.MaxError,
		FinalConfidence:    s.Nav.Confidence() * 100,
		TotalDistance:      s.Mission.TotalDistance,
	}
}

// JammingReport analyzes estimation error around the jamming window.
func (s *Simulator) JammingReport() JammingAnalysis {
	ja := JammingAnalysis{
		JamStart:           s.Mission.JamStart,
		JamEnd:             s.Mission.JamEnd,
		PeakErrorDuringJam: s.Mission.MaxError,
		RecoveryTime:       s.Mission.RecoveryTime(),
	}
	if len(s.trajectory) == 0 {
		return ja
	}

	if idx := int(s.Mission.JamStart/s.dt) - 1; idx >= 0 && idx < len(s.trajectory) {
		ja.ErrorBeforeJam = s.trajectory[idx].Error
	}
	ja.ErrorAfterRecovery = s.trajectory[len(s.trajectory)-1].Error

	var sumBefore, sumDuring, sumAfter float64
	var nBefore, nDuring, nAfter int
	for _, pt := range s.trajectory {
		switch {
		case pt.Time < s.Mission.JamStart:
			sumBefore += pt.Error
			nBefore++
		case pt.Time < s.Mission.JamEnd:
			sumDuring += pt.Error
			nDuring++
		default:
			sumAfter += pt.Error
			nAfter++
		}
	}
	if nBefore > 0 {
		ja.MeanErrorBefore = sumBefore / float64(nBefore)
	}
	if nDuring > 0 {
		ja.MeanErrorDuring = sumDuring / float64(nDuring)
	}
	if nAfter > 0 {
		ja.MeanErrorAfter = sumAfter / float64(nAfter)
	}
	return ja
}

// Results assembles the full result bundle for the run so far.
func (s *Simulator) Results() Results {
	status := "running"
	if s.Mission.Complete {
		status = "success"
	}
	return Results{
		Status:        status,
		Trajectory:    s.trajectory,
		Metrics:       s.GetMetrics(),
		Jamming:       s.JammingReport(),
		CurrentState:  s.current,
		MissionStatus: s.Mission.Status(),
	}
}
