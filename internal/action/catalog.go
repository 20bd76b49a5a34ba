package action

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"oauthbridge.io/bridge/internal/config"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

// EntityDescriptor is a target entity login actions may write to.
type EntityDescriptor struct {
	Name    string
	Table   string
	Columns []string
	// Key is the column that turns a write into an upsert.
	Key string
	// UniqueKey reports a unique index on Key, so upserts can use
	// INSERT ... ON CONFLICT.
	UniqueKey bool

	columns map[string]struct{}
}

// HasColumn reports whether name is a declared column.
func (d *EntityDescriptor) HasColumn(name string) bool {
	_, ok := d.columns[name]
	return ok
}

// Catalog maps model_class names onto entity descriptors.
// It is immutable after construction.
type Catalog struct {
	byName map[string]*EntityDescriptor
	names  []string
}

// NewCatalog validates the configured entities and indexes them by name and
// alias.
func NewCatalog(entities []config.EntityConfig) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*EntityDescriptor)}
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		d := &EntityDescriptor{
			Name:      e.Name,
			Table:     e.Table,
			Columns:   append([]string(nil), e.Columns...),
			Key:       e.KeyColumn(),
			UniqueKey: e.UniqueKey,
			columns:   make(map[string]struct{}, len(e.Columns)),
		}
		for _, col := range e.Columns {
			d.columns[col] = struct{}{}
		}
		for _, n := range append([]string{e.Name}, e.Aliases...) {
			k := normalizeModelClass(n)
			if k == "" {
				return nil, fmt.Errorf("entity %q: empty alias", e.Name)
			}
			if prev, dup := c.byName[k]; dup {
				return nil, fmt.Errorf("entity %q: name %q already used by %q", e.Name, n, prev.Name)
			}
			c.byName[k] = d
		}
		c.names = append(c.names, e.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Lookup resolves a model_class. Matching ignores case, surrounding space and
// a leading namespace backslash.
func (c *Catalog) Lookup(modelClass string) (*EntityDescriptor, error) {
	if d, ok := c.byName[normalizeModelClass(modelClass)]; ok {
		return d, nil
	}
	return nil, apperrors.New(apperrors.CodeUnknownEntityType,
		"model_class does not name a configured entity", http.StatusUnprocessableEntity,
	).WithParams(map[string]interface{}{"model_class": modelClass})
}

// Names returns the canonical entity names, sorted.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

func normalizeModelClass(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), `\`))
}
