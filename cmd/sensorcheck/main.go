// cmd/sensorcheck reads every sensor a few times and prints the values; used
// when bringing up a new board.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"meteostation/services/config"
	"meteostation/services/logging"
	"meteostation/services/station"
)

func main() {
	path := flag.String("config", os.Getenv("STATION_CONFIG"), "YAML config file")
	rounds := flag.Int("n", 3, "read rounds")
	gap := flag.Duration("every", time.Second, "delay between rounds")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	cfg.Uplink.Enabled = false
	log := logging.New(cfg, "dev", "sensorcheck")

	st, err := station.New(cfg, log, station.Options{Version: "sensorcheck"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("chip id %s\n", st.ChipID())

	failed := false
	ctx := context.Background()
	for i := 0; i < *rounds; i++ {
		if i > 0 {
			time.Sleep(*gap)
		}
		fmt.Printf("-- round %d\n", i+1)
		for _, r := range st.ReadSensors(ctx) {
			if r.Err != nil {
				failed = true
				fmt.Printf("%-10s FAIL %v\n", r.Source, r.Err)
				continue
			}
			keys := make([]string, 0, len(r.Values))
			for k := range r.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-10s %-24s %10.2f\n", r.Source, k, r.Values[k])
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}
