package main

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/service"
	"github.com/hapspan/hapspan-go/pkg/topology"
)

// simulatedTypes are the sensor characteristics the simulation drives.
var simulatedTypes = []string{"CurrentTemperature", "MotionDetected", "ContactSensorState"}

// runSimulation publishes synthetic readings for every sensor characteristic
// until ctx is done.
func runSimulation(ctx context.Context, srv *service.Server, interval time.Duration, logger *slog.Logger) {
	targets := sensorCharacteristics(srv.Database())
	if len(targets) == 0 {
		logger.Warn("simulation: no sensor characteristics to drive")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, c := range targets {
			v := simulatedValue(c, tick)
			if err := srv.Publish(ctx, c.AID(), c.IID(), v); err != nil {
				logger.Debug("simulation: publish failed", "aid", c.AID(), "iid", c.IID(), "error", err)
			}
		}
	}
}

func sensorCharacteristics(db *model.Database) []*model.Characteristic {
	types := map[string]bool{}
	for _, name := range simulatedTypes {
		if ct, ok := topology.LookupCharacteristic(name); ok {
			types[ct.Type] = true
		}
	}

	var out []*model.Characteristic
	for _, acc := range db.Accessories() {
		for _, c := range acc.Characteristics() {
			if types[c.Type()] {
				out = append(out, c)
			}
		}
	}
	return out
}

// simulatedValue returns a slow sine wave for floats and a toggle for the
// rest.
func simulatedValue(c *model.Characteristic, tick int) model.Value {
	switch c.Format() {
	case model.FormatFloat:
		return model.FloatValue(math.Round((21+2*math.Sin(float64(tick)/10))*10) / 10)
	case model.FormatBool:
		return model.BoolValue(tick%2 == 1)
	case model.FormatUint8:
		return model.Uint8Value(uint8(tick % 2))
	default:
		return c.Value()
	}
}
