package i18n

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default("en")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	langs := c.Languages()
	if len(langs) != 3 || langs[0] != "en" {
		t.Fatalf("languages: %v", langs)
	}
	if got := c.Text("ru", "btn.yes", nil); got != "Да" {
		t.Fatalf("ru btn.yes: %q", got)
	}
	if got := c.Text("en", "steam.saved", Params{"steam_id": "76561199999999999"}); !strings.Contains(got, "76561199999999999") {
		t.Fatalf("steam.saved: %q", got)
	}
}

func TestDefaultCatalogKeysResolveEverywhere(t *testing.T) {
	c, err := Default("en")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for key := range c.messages["en"] {
		for _, lang := range c.Languages() {
			if got := c.Text(lang, key, nil); got == key {
				t.Fatalf("%s/%s falls through to the key", lang, key)
			}
		}
	}
	for _, lang := range []string{"ru", "uk"} {
		for key := range c.messages[lang] {
			if _, ok := c.messages["en"][key]; !ok {
				t.Fatalf("%s has key %s missing from en", lang, key)
			}
		}
	}
}

func TestTextFallback(t *testing.T) {
	fsys := fstest.MapFS{
		"l/en.yaml": &fstest.MapFile{Data: []byte("hi: \"Hello, {{.name}}\"\nbye: \"Bye\"\n")},
		"l/ru.yaml": &fstest.MapFile{Data: []byte("hi: \"Привет, {{.name}}\"\n")},
	}
	c, err := Load(fsys, "l", "en")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		lang, key, want string
	}{
		{"ru", "hi", "Привет, Ann"},
		{"ru", "bye", "Bye"},
		{"de", "hi", "Hello, Ann"},
		{"", "hi", "Hello, Ann"},
		{"en", "missing", "missing"},
	}
	for _, tt := range tests {
		if got := c.Text(tt.lang, tt.key, Params{"name": "Ann"}); got != tt.want {
			t.Fatalf("Text(%q, %q) = %q, want %q", tt.lang, tt.key, got, tt.want)
		}
	}
}

func TestLoadRequiresDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"l/ru.yaml": &fstest.MapFile{Data: []byte("hi: \"x\"\n")},
	}
	if _, err := Load(fsys, "l", "en"); err == nil {
		t.Fatal("expected error without default catalog")
	}
}

func TestNormalize(t *testing.T) {
	c, err := Default("en")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tests := map[string]string{
		"":      "en",
		"ru":    "ru",
		"RU":    "ru",
		"uk":    "uk",
		"en-US": "en",
		"en-GB": "en",
		"ru-RU": "ru",
		"ja":    "en",
		"???":   "en",
	}
	for in, want := range tests {
		if got := c.Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
