package probe

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"techassist/server/internal/model"
)

const diskSampleSize = 1 << 20 // 1 MiB write/read sample

func (r *Runner) probePerformance(ctx context.Context) model.ProbeResult {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return failure(model.ProbePerformance, err)
	}

	writeDur, readDur, err := diskSample()
	if err != nil {
		return failure(model.ProbePerformance, err)
	}

	samples, err := sampleProcesses(ctx)
	if err != nil {
		return failure(model.ProbePerformance, err)
	}
	high, moderate := 0, 0
	for _, s := range samples {
		switch {
		case s.CPU > 50:
			high++
		case s.CPU > 20:
			moderate++
		}
	}

	score := perfScore(vm.UsedPercent, writeDur+readDur, high, moderate)
	statut := perfStatus(score)

	return model.ProbeResult{
		Statut:  statut,
		Message: fmt.Sprintf("Score de performance: %d/100", score),
		Details: map[string]any{
			"score":               score,
			"memoire_pourcentage": vm.UsedPercent,
			"duree_ecriture_ms":   writeDur.Milliseconds(),
			"duree_lecture_ms":    readDur.Milliseconds(),
			"processus_lourds":    high,
			"processus_moderes":   moderate,
		},
	}
}

// perfScore starts at 100 and deducts per finding. Deductions do not
// stack within a category; the worst one applies.
func perfScore(memPercent float64, diskDur time.Duration, high, moderate int) int {
	score := 100

	switch {
	case memPercent > 80:
		score -= 20
	case memPercent > 60:
		score -= 10
	}

	switch {
	case diskDur > 2*time.Second:
		score -= 15
	case diskDur > time.Second:
		score -= 5
	}

	switch {
	case high >= 3:
		score -= 20
	case high >= 1:
		score -= 10
	}
	if moderate >= 5 {
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	return score
}

func perfStatus(score int) model.ProbeStatus {
	switch {
	case score >= 80:
		return model.StatutOK
	case score >= 60:
		return model.StatutAvertissement
	default:
		return model.StatutErreur
	}
}

// diskSample times writing and reading back one mebibyte in the temp
// directory. Slow storage shows up directly in these two durations.
func diskSample() (write, read time.Duration, err error) {
	f, err := os.CreateTemp("", "perf-sample-*")
	if err != nil {
		return 0, 0, err
	}
	path := f.Name()
	defer os.Remove(path)

	buf := make([]byte, diskSampleSize)

	start := time.Now()
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return 0, 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, 0, err
	}
	write = time.Since(start)
	if err := f.Close(); err != nil {
		return 0, 0, err
	}

	start = time.Now()
	if _, err := os.ReadFile(path); err != nil {
		return 0, 0, err
	}
	read = time.Since(start)

	return write, read, nil
}
