package pipeline

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/samples"
	"github.com/vk/viraflow/internal/stream"
	"github.com/vk/viraflow/internal/task"
)

// Sources turns the discovered sample set into the initial records of
// every external channel. Field names follow the consuming ports: the
// paired-end trim task reads in.reads1/in.reads2, the long-read one
// reads in.reads.
//
// In dev mode the sample stream is truncated before any record is
// handed to the scheduler, so truncated samples never appear in the
// run summary at all.
func Sources(ctx context.Context, cfg *config.Run, discovered []samples.Sample) map[string][]task.Record {
	log := ctxlog.FromContext(ctx)

	kept := discovered
	if cfg.Dev {
		ch := stream.New[samples.Sample]("pipeline.samples")
		limited := stream.Take(ch, "pipeline.samples.dev", cfg.DevInputs)
		kept = make([]samples.Sample, 0, cfg.DevInputs)
		limited.Each(func(s samples.Sample) {
			kept = append(kept, s)
		})
		ch.Feed(discovered)
		log.Info("dev mode: sample set truncated",
			"discovered", len(discovered), "kept", len(kept))
	}

	recs := make([]task.Record, 0, len(kept))
	for _, s := range kept {
		r := task.NewRecord(s.Key)
		if cfg.Mode == config.ModePE {
			r = r.WithPath("reads1", s.Reads1).WithPath("reads2", s.Reads2)
		} else {
			r = r.WithPath("reads", s.Reads1)
		}
		recs = append(recs, r)
	}

	accession := task.NewRecord("").
		With("accession", cty.StringVal(cfg.Reference))

	return map[string][]task.Record{
		SourceSamples:   recs,
		SourceAccession: {accession},
	}
}
