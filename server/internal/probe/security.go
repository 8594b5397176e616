package probe

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"techassist/server/internal/model"
)

func (r *Runner) probeSecurite(ctx context.Context) model.ProbeResult {
	if runtime.GOOS != "windows" {
		return model.ProbeResult{
			Statut:  model.StatutInformatif,
			Message: "Vérifications de sécurité non disponibles sur cette plateforme",
		}
	}

	var issues []string

	avCtx, cancel := context.WithTimeout(ctx, r.cfg.SecurityTimeout)
	if issue := checkAntivirus(avCtx); issue != "" {
		issues = append(issues, issue)
	}
	cancel()

	updCtx, cancel := context.WithTimeout(ctx, r.cfg.ServiceTimeout)
	if issue := checkUpdates(updCtx); issue != "" {
		issues = append(issues, issue)
	}
	cancel()

	statut, msg := securityVerdict(len(issues))
	details := map[string]any{}
	if len(issues) > 0 {
		details["problemes"] = issues
	}
	return model.ProbeResult{Statut: statut, Message: msg, Details: details}
}

// securityVerdict rates the issue count: two or more findings are an
// error, one a warning.
func securityVerdict(issues int) (model.ProbeStatus, string) {
	switch {
	case issues >= 2:
		return model.StatutErreur, fmt.Sprintf("%d problèmes de sécurité détectés", issues)
	case issues == 1:
		return model.StatutAvertissement, "1 problème de sécurité détecté"
	default:
		return model.StatutOK, "Aucun problème de sécurité détecté"
	}
}

func checkAntivirus(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
		"(Get-MpComputerStatus).AntivirusEnabled").Output()
	if err != nil {
		return fmt.Sprintf("état antivirus inconnu (%v)", err)
	}
	if !strings.Contains(strings.ToLower(string(out)), "true") {
		return "antivirus désactivé"
	}
	return ""
}

func checkUpdates(ctx context.Context) string {
	// wuauserv stopped means Windows Update cannot install anything.
	out, err := exec.CommandContext(ctx, "sc", "query", "wuauserv").Output()
	if err != nil {
		return fmt.Sprintf("état des mises à jour inconnu (%v)", err)
	}
	if !strings.Contains(string(out), "RUNNING") {
		return "service de mises à jour arrêté"
	}
	return ""
}
