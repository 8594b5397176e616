package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"techassist/server/internal/model"
)

const validSeed = `{
  "categories": [
    {"id": "reseau", "nom": "Réseau et Internet", "ordre": 2, "active": true},
    {"id": "materiel", "nom": "Matériel informatique", "ordre": 1, "active": true}
  ],
  "questions": [
    {
      "id": "q_demarrage", "categorie_id": "materiel",
      "titre": "Votre ordinateur s'allume-t-il correctement ?",
      "type_reponse": "choix_unique", "ordre": 1, "active": true, "est_critique": true,
      "choix": [
        {"id": "c_ok", "question_id": "q_demarrage", "texte": "Oui", "valeur": "ok", "score_criticite": 0, "ordre": 0},
        {"id": "c_non", "question_id": "q_demarrage", "texte": "Non", "valeur": "non", "score_criticite": 10, "ordre": 1}
      ]
    },
    {
      "id": "q_bruit", "categorie_id": "materiel",
      "titre": "Des bruits inhabituels ?",
      "type_reponse": "choix_unique", "ordre": 2, "active": true, "est_critique": false,
      "parent_id": "q_demarrage"
    }
  ],
  "templates": [
    {
      "id": "tpl_rapide", "nom": "Diagnostic rapide matériel", "categorie_id": "materiel", "active": true,
      "questions": [{"question_id": "q_demarrage", "ordre": 1, "obligatoire": true}]
    }
  ],
  "rules": [
    {"id": "r_critique", "nom": "Problème critique", "categorie_id": "materiel", "active": true,
     "score_minimum": 8, "message_utilisateur": "Contactez le support."}
  ]
}`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, validSeed))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(seed.Categories) != 2 || len(seed.Questions) != 2 {
		t.Fatalf("unexpected seed shape: %d categories, %d questions", len(seed.Categories), len(seed.Questions))
	}
}

// validate rejects dangling references instead of letting them surface
// later as silently skipped questions.
func TestLoadSeedRejectsDanglingRefs(t *testing.T) {
	cases := []struct {
		name string
		edit func(string) string
		want string
	}{
		{
			name: "question with unknown category",
			edit: func(s string) string {
				return strings.Replace(s, `"id": "q_demarrage", "categorie_id": "materiel"`, `"id": "q_demarrage", "categorie_id": "ghost"`, 1)
			},
			want: "unknown category",
		},
		{
			name: "question with unknown parent",
			edit: func(s string) string { return strings.Replace(s, `"parent_id": "q_demarrage"`, `"parent_id": "ghost"`, 1) },
			want: "unknown parent",
		},
		{
			name: "template with unknown question",
			edit: func(s string) string { return strings.Replace(s, `{"question_id": "q_demarrage", "ordre": 1`, `{"question_id": "ghost", "ordre": 1`, 1) },
			want: "unknown question",
		},
		{
			name: "rule with unknown category",
			edit: func(s string) string {
				return strings.Replace(s, `"nom": "Problème critique", "categorie_id": "materiel"`, `"nom": "Problème critique", "categorie_id": "ghost"`, 1)
			},
			want: "unknown category",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSeed(writeSeed(t, tc.edit(validSeed)))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("LoadSeed error = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestStoreLookups(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, validSeed))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	s := NewInMemoryStore(seed)
	ctx := context.Background()

	cats, err := s.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 2 || cats[0].ID != "materiel" || cats[1].ID != "reseau" {
		t.Fatalf("categories not sorted by ordre: %+v", cats)
	}

	qs, err := s.ListQuestions(ctx, "materiel")
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 2 || qs[0].ID != "q_demarrage" {
		t.Fatalf("questions not in ordre: %+v", qs)
	}

	tpl, err := s.ActiveTemplate(ctx, "materiel")
	if err != nil || tpl.ID != "tpl_rapide" {
		t.Fatalf("ActiveTemplate = %v, %v", tpl, err)
	}
	if _, err := s.ActiveTemplate(ctx, "reseau"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no template category: got %v, want ErrNotFound", err)
	}
}

// ListRules returns the execution order: lowest Priorite first, the ID
// breaking ties.
func TestListRulesExecutionOrder(t *testing.T) {
	s := NewInMemoryStore(&Seed{
		Categories: []model.Category{{ID: "reseau", Nom: "Réseau", Active: true}},
		Rules: []model.Rule{
			{ID: "r_b", Nom: "Escalade", CategorieID: "reseau", Active: true, Priorite: 10},
			{ID: "r_c", Nom: "Message", CategorieID: "reseau", Active: true, Priorite: 1},
			{ID: "r_a", Nom: "Ticket", CategorieID: "reseau", Active: true, Priorite: 10},
		},
	})

	rules, err := s.ListRules(context.Background(), "reseau")
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	got := []string{rules[0].ID, rules[1].ID, rules[2].ID}
	want := []string{"r_c", "r_a", "r_b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rule order = %v, want %v", got, want)
		}
	}
}

// SaveRule persists the evaluation bookkeeping but never creates rules.
func TestSaveRule(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, validSeed))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	s := NewInMemoryStore(seed)
	ctx := context.Background()

	rules, err := s.ListRules(ctx, "materiel")
	if err != nil || len(rules) != 1 {
		t.Fatalf("ListRules = %v, %v", rules, err)
	}

	r := rules[0]
	r.DernierResultat = true
	r.DernierMessage = r.MessageUtilisateur
	if err := s.SaveRule(ctx, &r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
	rules, _ = s.ListRules(ctx, "materiel")
	if !rules[0].DernierResultat {
		t.Fatalf("rule bookkeeping not persisted: %+v", rules[0])
	}

	ghost := model.Rule{ID: "ghost", CategorieID: "materiel"}
	if err := s.SaveRule(ctx, &ghost); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SaveRule unknown rule: got %v, want ErrNotFound", err)
	}
}
