package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"techassist/server/internal/config"
	"techassist/server/internal/model"
)

// Func runs one probe. Probes report through the result, never through an
// error: a failed measurement is itself a finding.
type Func func(ctx context.Context) model.ProbeResult

// Runner executes the probe battery in a fixed order. A panicking probe
// is converted into an erreur result so one bad measurement never aborts
// the batch.
type Runner struct {
	cfg    config.ProbesConfig
	log    *zap.Logger
	probes []entry
}

type entry struct {
	typ model.ProbeType
	fn  Func
}

// NewRunner builds the default battery. The systeme probe runs first so
// its platform facts are on record before anything interprets them.
func NewRunner(cfg config.ProbesConfig, log *zap.Logger) *Runner {
	r := &Runner{cfg: cfg, log: log}
	r.register(model.ProbeSysteme, r.probeSysteme)
	r.register(model.ProbeMemoire, r.probeMemoire)
	r.register(model.ProbeDisque, r.probeDisque)
	r.register(model.ProbeCPU, r.probeCPU)
	r.register(model.ProbeReseau, r.probeReseau)
	r.register(model.ProbeServices, r.probeServices)
	r.register(model.ProbeLogiciels, r.probeLogiciels)
	r.register(model.ProbeSecurite, r.probeSecurite)
	r.register(model.ProbePerformance, r.probePerformance)
	return r
}

func (r *Runner) register(typ model.ProbeType, fn Func) {
	r.probes = append(r.probes, entry{typ: typ, fn: fn})
}

// RunAll executes every probe and returns one result per probe, in
// registration order. It never returns fewer results than probes.
func (r *Runner) RunAll(ctx context.Context) []model.ProbeResult {
	results := make([]model.ProbeResult, 0, len(r.probes))
	for _, e := range r.probes {
		start := time.Now()
		res := r.runOne(ctx, e)
		r.log.Debug("probe finished",
			zap.String("probe", string(e.typ)),
			zap.String("statut", string(res.Statut)),
			zap.Duration("duree", time.Since(start)))
		results = append(results, res)
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, e entry) (res model.ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("probe panicked", zap.String("probe", string(e.typ)), zap.Any("panic", rec))
			res = failure(e.typ, fmt.Errorf("panic: %v", rec))
		}
	}()
	res = e.fn(ctx)
	res.Type = e.typ
	return res
}

// cpuSampleInterval is the window the CPU probe averages over.
const cpuSampleInterval = time.Second

// failure is the uniform shape of a probe that could not measure.
func failure(typ model.ProbeType, err error) model.ProbeResult {
	return model.ProbeResult{
		Type:    typ,
		Statut:  model.StatutErreur,
		Message: fmt.Sprintf("Erreur lors de la vérification: %v", err),
		Details: map[string]any{"erreur": err.Error()},
	}
}

// usageStatus maps a used-percent reading to a status. Above 90 is an
// error, above 80 a warning.
func usageStatus(percent float64) model.ProbeStatus {
	switch {
	case percent > 90:
		return model.StatutErreur
	case percent > 80:
		return model.StatutAvertissement
	default:
		return model.StatutOK
	}
}
