package probe

import (
	"context"
	"fmt"
	"net"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"

	"techassist/server/internal/model"
)

func (r *Runner) probeMemoire(ctx context.Context) model.ProbeResult {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return failure(model.ProbeMemoire, err)
	}

	statut := usageStatus(vm.UsedPercent)
	msg := fmt.Sprintf("Utilisation mémoire: %.1f%%", vm.UsedPercent)
	if statut == model.StatutErreur {
		msg = fmt.Sprintf("Mémoire critique: %.1f%% utilisée", vm.UsedPercent)
	} else if statut == model.StatutAvertissement {
		msg = fmt.Sprintf("Mémoire élevée: %.1f%% utilisée", vm.UsedPercent)
	}

	return model.ProbeResult{
		Statut:  statut,
		Message: msg,
		Details: map[string]any{
			"pourcentage_utilise": vm.UsedPercent,
			"total_mo":            vm.Total / 1024 / 1024,
			"disponible_mo":       vm.Available / 1024 / 1024,
		},
	}
}

// mountUsage is one readable mount point's fill level.
type mountUsage struct {
	Point   string
	Percent float64
	TotalGo uint64
	LibreGo uint64
}

// probeDisque rates every mount point and reports the fullest one. A
// mount that cannot be read (pseudo filesystems, permission walls) is
// skipped, never fatal.
func (r *Runner) probeDisque(ctx context.Context) model.ProbeResult {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return failure(model.ProbeDisque, err)
	}

	var mounts []mountUsage
	ignores := 0
	perMount := make(map[string]any)
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			ignores++
			continue
		}
		mounts = append(mounts, mountUsage{
			Point:   p.Mountpoint,
			Percent: usage.UsedPercent,
			TotalGo: usage.Total / 1024 / 1024 / 1024,
			LibreGo: usage.Free / 1024 / 1024 / 1024,
		})
		perMount[p.Mountpoint] = map[string]any{
			"pourcentage_utilise": usage.UsedPercent,
			"total_go":            usage.Total / 1024 / 1024 / 1024,
			"libre_go":            usage.Free / 1024 / 1024 / 1024,
		}
	}

	worst, ok := worstMount(mounts)
	if !ok {
		return failure(model.ProbeDisque, fmt.Errorf("aucun point de montage lisible"))
	}

	statut := usageStatus(worst.Percent)
	msg := fmt.Sprintf("Utilisation disque: %.1f%% (%s)", worst.Percent, worst.Point)
	if statut == model.StatutErreur {
		msg = fmt.Sprintf("Disque presque plein: %.1f%% utilisé sur %s", worst.Percent, worst.Point)
	} else if statut == model.StatutAvertissement {
		msg = fmt.Sprintf("Espace disque faible: %.1f%% utilisé sur %s", worst.Percent, worst.Point)
	}

	return model.ProbeResult{
		Statut:  statut,
		Message: msg,
		Details: map[string]any{
			"point_montage":       worst.Point,
			"pourcentage_utilise": worst.Percent,
			"total_go":            worst.TotalGo,
			"libre_go":            worst.LibreGo,
			"points_montage":      perMount,
			"montages_ignores":    ignores,
		},
	}
}

// worstMount picks the fullest mount. ok is false when nothing was
// readable.
func worstMount(mounts []mountUsage) (mountUsage, bool) {
	var worst mountUsage
	found := false
	for _, m := range mounts {
		if !found || m.Percent > worst.Percent {
			worst = m
			found = true
		}
	}
	return worst, found
}

func (r *Runner) probeCPU(ctx context.Context) model.ProbeResult {
	// One-second sample; instantaneous readings are too noisy to rate.
	percents, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil || len(percents) == 0 {
		if err == nil {
			err = fmt.Errorf("no cpu sample")
		}
		return failure(model.ProbeCPU, err)
	}
	usage := percents[0]

	statut := usageStatus(usage)
	msg := fmt.Sprintf("Utilisation CPU: %.1f%%", usage)
	if statut == model.StatutErreur {
		msg = fmt.Sprintf("CPU surchargé: %.1f%%", usage)
	} else if statut == model.StatutAvertissement {
		msg = fmt.Sprintf("CPU fortement sollicité: %.1f%%", usage)
	}

	return model.ProbeResult{
		Statut:  statut,
		Message: msg,
		Details: map[string]any{
			"pourcentage_utilise": usage,
			"coeurs":              runtime.NumCPU(),
		},
	}
}

// probeReseau checks connectivity in two stages: interfaces present, then
// actual internet reachability against a public resolver.
func (r *Runner) probeReseau(ctx context.Context) model.ProbeResult {
	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return failure(model.ProbeReseau, err)
	}
	up := 0
	for _, iface := range ifaces {
		for _, flag := range iface.Flags {
			if flag == "up" {
				up++
				break
			}
		}
	}
	if up == 0 {
		return model.ProbeResult{
			Statut:  model.StatutAvertissement,
			Message: "Aucune interface réseau active",
			Details: map[string]any{"interfaces_actives": 0},
		}
	}

	conn, err := net.DialTimeout("tcp", internetCheckAddr, r.cfg.NetworkTimeout)
	if err != nil {
		return model.ProbeResult{
			Statut:  model.StatutErreur,
			Message: "Pas d'accès Internet",
			Details: map[string]any{
				"interfaces_actives": up,
				"erreur":             err.Error(),
			},
		}
	}
	_ = conn.Close()

	return model.ProbeResult{
		Statut:  model.StatutOK,
		Message: "Connexion réseau opérationnelle",
		Details: map[string]any{"interfaces_actives": up},
	}
}

func (r *Runner) probeSysteme(ctx context.Context) model.ProbeResult {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return failure(model.ProbeSysteme, err)
	}

	return model.ProbeResult{
		Statut:  model.StatutInformatif,
		Message: fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch),
		Details: map[string]any{
			"os":            info.OS,
			"plateforme":    info.Platform,
			"version":       info.PlatformVersion,
			"architecture":  info.KernelArch,
			"nom_hote":      info.Hostname,
			"uptime_heures": info.Uptime / 3600,
		},
	}
}

const internetCheckAddr = "8.8.8.8:53"
