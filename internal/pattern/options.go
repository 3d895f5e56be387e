package pattern

import "github.com/imyousuf/daotrace/internal/unit"

// Options tunes the default patterns. It is built from the pattern
// configuration and is read-only once a catalog has been created.
type Options struct {
	// SessionMethods maps generic data-access method names to their access class.
	SessionMethods map[string]Access
	// SessionReceivers restricts session calls to these receiver names.
	// Empty means any receiver.
	SessionReceivers []string
	// InjectAnnotations mark a field as injected.
	InjectAnnotations []string
	// BindingAnnotations mark a parameter as bound by an external mapping layer.
	BindingAnnotations []string
	// MapperAnnotations mark a whole interface as externally mapped.
	MapperAnnotations []string
	// DelegateLayers lists the callee layers a delegation may target.
	DelegateLayers []unit.Layer
	// SimpleNameFallback resolves a field type by its simple name when it is
	// unique across all units and no import or package rule applies.
	SimpleNameFallback bool
}

// DefaultOptions returns the options for MyBatis-style sessions and
// Spring/JSR-330 injection.
func DefaultOptions() Options {
	return Options{
		SessionMethods: map[string]Access{
			"select":       AccessRead,
			"selectOne":    AccessRead,
			"selectList":   AccessRead,
			"selectMap":    AccessRead,
			"selectCursor": AccessRead,
			"insert":       AccessCreate,
			"update":       AccessUpdate,
			"delete":       AccessDelete,
		},
		InjectAnnotations:  []string{"Autowired", "Inject", "Resource"},
		BindingAnnotations: []string{"Param"},
		MapperAnnotations:  []string{"Mapper"},
		DelegateLayers:     []unit.Layer{unit.LayerDAO, unit.LayerUnknown},
		SimpleNameFallback: true,
	}
}
