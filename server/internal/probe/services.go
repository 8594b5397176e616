package probe

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"techassist/server/internal/model"
)

// criticalServices lists the services a workstation cannot usefully run
// without, per platform.
func criticalServices() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"Spooler", "Dhcp", "Dnscache", "AudioSrv", "Themes"}
	case "linux":
		return []string{"dbus", "NetworkManager", "systemd-resolved"}
	default:
		return nil
	}
}

func (r *Runner) probeServices(ctx context.Context) model.ProbeResult {
	services := criticalServices()
	if len(services) == 0 {
		return model.ProbeResult{
			Statut:  model.StatutInformatif,
			Message: "Vérification des services non disponible sur cette plateforme",
		}
	}

	var problems []string
	for _, name := range services {
		checkCtx, cancel := context.WithTimeout(ctx, r.cfg.ServiceTimeout)
		running, err := serviceRunning(checkCtx, name)
		cancel()
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: vérification impossible (%v)", name, err))
			continue
		}
		if !running {
			problems = append(problems, fmt.Sprintf("%s: arrêté", name))
		}
	}

	statut, msg := servicesVerdict(len(problems))
	details := map[string]any{"services_verifies": len(services)}
	if len(problems) > 0 {
		details["problemes"] = problems
	}
	return model.ProbeResult{Statut: statut, Message: msg, Details: details}
}

// servicesVerdict rates the problem count: any problem is at least a
// warning, three or more an error.
func servicesVerdict(problems int) (model.ProbeStatus, string) {
	switch {
	case problems == 0:
		return model.StatutOK, "Tous les services critiques sont actifs"
	case problems < 3:
		return model.StatutAvertissement, fmt.Sprintf("%d service(s) critique(s) en anomalie", problems)
	default:
		return model.StatutErreur, fmt.Sprintf("%d services critiques en anomalie", problems)
	}
}

func serviceRunning(ctx context.Context, name string) (bool, error) {
	switch runtime.GOOS {
	case "windows":
		out, err := exec.CommandContext(ctx, "sc", "query", name).Output()
		if err != nil {
			return false, err
		}
		return strings.Contains(string(out), "RUNNING"), nil
	case "linux":
		err := exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", name).Run()
		if err != nil {
			// Exit status 3 means inactive, not a probe failure.
			if _, ok := err.(*exec.ExitError); ok {
				return false, nil
			}
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("plateforme non supportée")
	}
}
