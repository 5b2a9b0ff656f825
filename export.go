package stella

import (
	"fmt"
	"os"
	"time"
)

// ExportConfig configures the streaming of trajectory data to disk.
type ExportConfig struct {
	Filename     string
	AsCSV        bool
	Timestamp    bool                            // append the simulation start time to the filename
	CSVAppend    func(pt TrajectoryPoint) string // custom extra columns (no leading comma)
	CSVAppendHdr func() string                   // header for the custom columns
}

// IsUseless returns whether this config would export nothing.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV || c.Filename == ""
}

// StreamTrajectory drains the channel into a CSV file until the channel is
// closed. Intended to run in its own goroutine; the Simulator feeds it one
// point per tick.
func StreamTrajectory(conf ExportConfig, runID string, ptChan <-chan TrajectoryPoint) {
	if conf.IsUseless() {
		for range ptChan {
			// Drain so the producer never blocks.
		}
		return
	}
	f := createCSVFile(conf, runID)
	defer f.Close()
	for pt := range ptChan {
		f.WriteString(pt.CSV())
		if conf.CSVAppend != nil {
			f.WriteString("," + conf.CSVAppend(pt))
		}
		f.WriteString("\n")
	}
}

func createCSVFile(conf ExportConfig, runID string) *os.File {
	name := conf.Filename
	if conf.Timestamp {
		name = fmt.Sprintf("%s-%s", name, time.Now().Format("2006-01-02-15.04.05"))
	}
	f, err := os.Create(name + ".csv")
	if err != nil {
		panic(err)
	}
	fmt.Printf("Saving trajectory to %s.\n", f.Name())
	f.WriteString(fmt.Sprintf("# Simulation run %s\n", runID))
	hdr := "time,trueX,trueY,estX,estY,error,confidence,gpsStatus,navMode"
	if conf.CSVAppendHdr != nil {
		hdr += "," + conf.CSVAppendHdr()
	}
	f.WriteString(hdr + "\n")
	return f
}

// CSV returns the data as CSV (does *not* include the new line).
func (pt TrajectoryPoint) CSV() string {
	return fmt.Sprintf("%.1f,%.3f,%.3f,%.3f,%.3f,%.3f,%.2f,%s,%s",
		pt.Time, pt.TrueX, pt.TrueY, pt.EstX, pt.EstY, pt.Error, pt.Confidence, pt.GPSStatus, pt.NavMode)
}
