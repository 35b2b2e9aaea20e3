package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/render"
)

const statsInterval = 10 * time.Second

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func formatUptime(d time.Duration) string {
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).Format(shortUnits)
}

// logStats logs the driver counters every statsInterval until ctx is done.
// frames may be nil.
func logStats(ctx context.Context, logger *slog.Logger, drv *engine.Driver, frames *render.FrameSink, start time.Time) {
	t := time.NewTicker(statsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		logger.Info("stats", statsAttrs(drv.Stats(), frames, time.Since(start))...)
	}
}

func statsAttrs(st engine.Stats, frames *render.FrameSink, uptime time.Duration) []any {
	attrs := []any{
		"uptime", formatUptime(uptime),
		"active", st.Active,
		"events", humanize.Comma(int64(st.Events)),
		"ignored", humanize.Comma(int64(st.Ignored)),
		"evicted", humanize.Comma(int64(st.Evicted)),
		"expired", humanize.Comma(int64(st.Expired)),
		"dropped", humanize.Comma(int64(st.Dropped)),
		"render_errors", humanize.Comma(int64(st.SinkErrors)),
	}
	if frames != nil {
		attrs = append(attrs,
			"frames", humanize.Comma(int64(frames.FramesWritten())),
			"serial", humanize.Bytes(frames.BytesWritten()),
		)
	}
	return attrs
}
