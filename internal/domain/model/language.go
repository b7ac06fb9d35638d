package model

import (
	"sort"
	"strconv"
	"strings"
)

type Language struct {
	ID       int    `json:"id" toml:"id"` // execution backend's numeric language id
	Name     string `json:"name" toml:"name"`
	Slug     string `json:"slug" toml:"slug"` // For API usage
	IsActive bool   `json:"is_active" toml:"active"`
}

// LanguageCatalog resolves the language names clients send into backend ids.
type LanguageCatalog struct {
	bySlug map[string]Language
	byID   map[int]Language
}

func NewLanguageCatalog(langs []Language) *LanguageCatalog {
	c := &LanguageCatalog{
		bySlug: make(map[string]Language, len(langs)),
		byID:   make(map[int]Language, len(langs)),
	}
	for _, l := range langs {
		l.Slug = strings.ToLower(strings.TrimSpace(l.Slug))
		c.bySlug[l.Slug] = l
		c.byID[l.ID] = l
	}
	return c
}

// DefaultLanguages mirrors the Judge0 CE ids the web editor offers.
func DefaultLanguages() []Language {
	return []Language{
		{ID: 63, Name: "JavaScript (Node.js 12.14.0)", Slug: "javascript", IsActive: true},
		{ID: 71, Name: "Python (3.8.1)", Slug: "python", IsActive: true},
		{ID: 54, Name: "C++ (GCC 9.2.0)", Slug: "cpp", IsActive: true},
		{ID: 62, Name: "Java (OpenJDK 13.0.1)", Slug: "java", IsActive: true},
	}
}

// Resolve accepts a slug ("python") or a numeric backend id ("71").
func (c *LanguageCatalog) Resolve(key string) (Language, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if l, ok := c.bySlug[key]; ok && l.IsActive {
		return l, true
	}
	if id, err := strconv.Atoi(key); err == nil {
		if l, ok := c.byID[id]; ok && l.IsActive {
			return l, true
		}
	}
	return Language{}, false
}

func (c *LanguageCatalog) List() []Language {
	out := make([]Language, 0, len(c.bySlug))
	for _, l := range c.bySlug {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
