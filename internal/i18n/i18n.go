// Package i18n renders user-facing messages from embedded YAML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Catalog keys used across the service.
const (
	KeyNotFound         = "appointment.notFound"
	KeyDatePassed       = "appointment.date.passed"
	KeyDateFormat       = "appointment.date.format"
	KeyProviderNotFound = "appointment.doctor.notFound"
	KeyProviderBusy     = "appointment.doctor.isBusy"
	KeyAcceptLimit      = "appointment.doctor.acceptLimit"
	KeyForbidden        = "common.forbidden"
	KeyInternal         = "common.internal"
	KeyBadRequest       = "common.badRequest"
	KeyRemindSubject    = "notify.subject"
	KeyRemindDayAhead   = "notify.users.oneDay"
	KeyRemindHoursAhead = "notify.users.twoHours"
)

// DefaultLanguage is used when nothing better matches.
const DefaultLanguage = "uk"

//go:embed locales/*.yaml
var localeFS embed.FS

// Args are substituted into {placeholder} slots.
type Args map[string]string

// Translator looks up messages with a regional → base → default fallback.
type Translator struct {
	catalogs map[string]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
	fallback string
}

// New loads the embedded catalogs. fallback must name one of them; an empty
// value selects DefaultLanguage.
func New(fallback string) (*Translator, error) {
	if fallback == "" {
		fallback = DefaultLanguage
	}
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales: %w", err)
	}
	catalogs := make(map[string]map[string]string, len(entries))
	for _, e := range entries {
		raw, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
		flat := make(map[string]string)
		flatten("", tree, flat)
		catalogs[strings.TrimSuffix(e.Name(), path.Ext(e.Name()))] = flat
	}
	if _, ok := catalogs[fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback language %q has no catalog", fallback)
	}

	// The fallback goes first so the matcher returns it for unknown tags.
	langs := make([]string, 0, len(catalogs))
	for lang := range catalogs {
		if lang != fallback {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	langs = append([]string{fallback}, langs...)
	tags := make([]language.Tag, len(langs))
	for i, l := range langs {
		tags[i] = language.Make(l)
	}

	return &Translator{
		catalogs: catalogs,
		tags:     tags,
		matcher:  language.NewMatcher(tags),
		fallback: fallback,
	}, nil
}

// MustNew is New for process start-up.
func MustNew(fallback string) *Translator {
	t, err := New(fallback)
	if err != nil {
		panic(err)
	}
	return t
}

// Languages lists the loaded catalogs, fallback first.
func (t *Translator) Languages() []string {
	out := make([]string, len(t.tags))
	for i, tag := range t.tags {
		out[i] = tag.String()
	}
	return out
}

// Resolve maps a language preference (a bare tag like "en-US" or an
// Accept-Language header value) to a loaded catalog name.
func (t *Translator) Resolve(pref string) string {
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return t.fallback
	}
	if _, ok := t.catalogs[strings.ToLower(pref)]; ok {
		return strings.ToLower(pref)
	}
	desired, _, err := language.ParseAcceptLanguage(pref)
	if err != nil || len(desired) == 0 {
		return t.fallback
	}
	_, idx, conf := t.matcher.Match(desired...)
	if conf == language.No {
		return t.fallback
	}
	return t.tags[idx].String()
}

// Translate renders key in lang. Missing keys fall back to the default
// catalog and finally to the key itself.
func (t *Translator) Translate(key, lang string, args Args) string {
	resolved := t.Resolve(lang)
	msg, ok := t.catalogs[resolved][key]
	if !ok {
		msg, ok = t.catalogs[t.fallback][key]
	}
	if !ok {
		return key
	}
	return norm.NFC.String(interpolate(msg, args))
}

func interpolate(msg string, args Args) string {
	if len(args) == 0 || !strings.Contains(msg, "{") {
		return msg
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
