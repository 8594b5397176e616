package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"techassist/server/internal/model"
)

// ProcessSample is one running process as the logiciels probe sees it.
type ProcessSample struct {
	Nom string  `json:"nom"`
	CPU float64 `json:"cpu"`
	Mem float64 `json:"memoire"`
}

// suspectNames flags processes whose name alone warrants an error.
var suspectNames = []string{"malware", "virus", "trojan"}

func (r *Runner) probeLogiciels(ctx context.Context) model.ProbeResult {
	samples, err := sampleProcesses(ctx)
	if err != nil {
		return failure(model.ProbeLogiciels, err)
	}
	return classifyProcesses(samples)
}

// sampleProcesses returns the processes consuming more than 10% CPU or 5%
// memory, heaviest CPU first, capped at ten.
func sampleProcesses(ctx context.Context) ([]ProcessSample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var samples []ProcessSample
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			continue
		}
		memPct, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		if cpuPct > 10 || memPct > 5 {
			samples = append(samples, ProcessSample{Nom: name, CPU: cpuPct, Mem: float64(memPct)})
		}
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].CPU > samples[j].CPU })
	if len(samples) > 10 {
		samples = samples[:10]
	}
	return samples, nil
}

// classifyProcesses rates a process sample: a suspect name is an error,
// any process above 50% CPU a warning.
func classifyProcesses(samples []ProcessSample) model.ProbeResult {
	details := map[string]any{"processus": samples}

	for _, s := range samples {
		lower := strings.ToLower(s.Nom)
		for _, suspect := range suspectNames {
			if strings.Contains(lower, suspect) {
				details["processus_suspect"] = s.Nom
				return model.ProbeResult{
					Statut:  model.StatutErreur,
					Message: fmt.Sprintf("Processus suspect détecté: %s", s.Nom),
					Details: details,
				}
			}
		}
	}

	for _, s := range samples {
		if s.CPU > 50 {
			return model.ProbeResult{
				Statut:  model.StatutAvertissement,
				Message: fmt.Sprintf("Application gourmande: %s (%.1f%% CPU)", s.Nom, s.CPU),
				Details: details,
			}
		}
	}

	return model.ProbeResult{
		Statut:  model.StatutOK,
		Message: fmt.Sprintf("%d processus actifs surveillés", len(samples)),
		Details: details,
	}
}
