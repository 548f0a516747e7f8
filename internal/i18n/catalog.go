// Package i18n хранит тексты бота на en / ru / uk.
//
// Каталоги лежат в locales/*.yaml (встроены в бинарник). Плейсхолдеры —
// шаблоны text/template вида {{.name}}. Неизвестный язык или ключ
// разрешаются через язык по умолчанию; если и там ключа нет, возвращается
// сам ключ.
package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localesFS embed.FS

// Params — значения для плейсхолдеров.
type Params map[string]any

type Catalog struct {
	def      string
	langs    []string
	matcher  language.Matcher
	messages map[string]map[string]*template.Template
}

// Default загружает встроенные каталоги.
func Default(defaultLang string) (*Catalog, error) {
	return Load(localesFS, "locales", defaultLang)
}

// Load читает все <lang>.yaml из dir. Язык по умолчанию обязан присутствовать.
func Load(fsys fs.FS, dir, defaultLang string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	c := &Catalog{messages: map[string]map[string]*template.Template{}}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		lang := strings.TrimSuffix(name, ".yaml")
		raw, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", lang, err)
		}
		var texts map[string]string
		if err := yaml.Unmarshal(raw, &texts); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", lang, err)
		}
		compiled := make(map[string]*template.Template, len(texts))
		for key, text := range texts {
			t, err := template.New(key).Option("missingkey=zero").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("locale %s key %s: %w", lang, key, err)
			}
			compiled[key] = t
		}
		c.messages[lang] = compiled
		c.langs = append(c.langs, lang)
	}
	if len(c.langs) == 0 {
		return nil, fmt.Errorf("no locales in %s", dir)
	}

	defaultLang = strings.ToLower(strings.TrimSpace(defaultLang))
	if _, ok := c.messages[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q has no catalog", defaultLang)
	}
	c.def = defaultLang

	// язык по умолчанию — первым: на него matcher откатывается при промахе
	sort.Slice(c.langs, func(i, j int) bool {
		if c.langs[i] == c.def || c.langs[j] == c.def {
			return c.langs[i] == c.def
		}
		return c.langs[i] < c.langs[j]
	})
	tags := make([]language.Tag, 0, len(c.langs))
	for _, l := range c.langs {
		tags = append(tags, language.Make(l))
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

func (c *Catalog) DefaultLanguage() string { return c.def }

// Languages — поддерживаемые коды, язык по умолчанию первым.
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.langs...)
}

// Supported — есть ли каталог ровно для этого кода.
func (c *Catalog) Supported(lang string) bool {
	_, ok := c.messages[lang]
	return ok
}

// Normalize приводит код языка или локаль Discord (en-US, ru, uk) к
// поддерживаемому коду. Пустое и непонятное значение — язык по умолчанию.
func (c *Catalog) Normalize(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return c.def
	}
	if c.Supported(strings.ToLower(lang)) {
		return strings.ToLower(lang)
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return c.def
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf == language.No {
		return c.def
	}
	return c.langs[idx]
}

// Text возвращает строку для ключа на языке lang.
func (c *Catalog) Text(lang, key string, params Params) string {
	t, ok := c.lookup(lang, key)
	if !ok {
		return key
	}
	if params == nil {
		params = Params{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return key
	}
	return buf.String()
}

func (c *Catalog) lookup(lang, key string) (*template.Template, bool) {
	if msgs, ok := c.messages[lang]; ok {
		if t, ok := msgs[key]; ok {
			return t, true
		}
	}
	t, ok := c.messages[c.def][key]
	return t, ok
}
