// Package pmmlctx implements ConversionContext (component C2): the scoped
// symbol tables threaded through one compilation — data dictionary, mining
// schema stack, transformation dictionary, custom function table, and the
// unique-name allocator.
package pmmlctx

import (
	"strings"
	"unicode"

	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

// CustomFunction is a user-defined function declared via PMML's
// DefineFunction, recorded so call sites can be type-checked and dispatched
// to a lambda the same way a builtin is.
type CustomFunction struct {
	Target     fieldtype.ID
	OutputType fieldtype.Type
	Lambda     *catalog.Definition
	Parameters []fieldtype.Type
}

// dataDictEntry is one (unscoped name -> field) binding. Multiple bindings
// may share a name the way a PMML derived field can shadow a data
// dictionary field of the same name; a multimap would allow duplicates
// faithfully but Go's lookups already walk the slice newest-first, giving
// the same "most recently declared wins" semantics without an actual
// multimap type.
type dataDictEntry struct {
	field fieldtype.ID
}

// Context is the per-compilation symbol table. One Context (and its
// Registry) belongs to exactly one Driver.Compile call.
type Context struct {
	Registry *fieldtype.Registry

	inputs  map[string]fieldtype.ID
	outputs map[string]fieldtype.ID
	neurons map[string]fieldtype.ID

	dataDictionary map[string][]dataDictEntry

	miningSchema map[string]fieldtype.MiningField

	// transformationDictionary holds derived-field template values
	// type-erased as interface{}: ast imports pmmlctx for Context, so
	// pmmlctx cannot name a template type from ast. Whoever reads a value
	// back asserts it to its concrete type.
	transformationDictionary       map[string]interface{}
	loadingTransformationDictionary bool

	variableNames map[string]struct{}

	application string

	customFunctions map[string]CustomFunction
}

// New creates an empty conversion context with its own field registry.
func New() *Context {
	return &Context{
		Registry:        fieldtype.NewRegistry(),
		inputs:          map[string]fieldtype.ID{},
		outputs:         map[string]fieldtype.ID{},
		neurons:         map[string]fieldtype.ID{},
		dataDictionary:  map[string][]dataDictEntry{},
		miningSchema:    map[string]fieldtype.MiningField{},
		variableNames:   map[string]struct{}{},
		customFunctions: map[string]CustomFunction{},
	}
}

// SetupInputs partitions a data dictionary into active inputs (fields used
// by at least one model's mining schema) and declared-but-unused outputs.
func (c *Context) SetupInputs(fields []fieldtype.Description, names []string, active map[string]bool, out map[string]bool) {
	for i, name := range names {
		if active[name] {
			id := c.AddUnscopedDataField(name, fields[i], fieldtype.OriginDataDictionary)
			c.inputs[name] = id
		} else {
			c.variableNames[name] = struct{}{}
			if out[name] {
				id := c.AddUnscopedDataField(name, fields[i], fieldtype.OriginOutput)
				c.outputs[name] = id
			}
		}
	}
}

// SetupOutputs registers the document's top-level output fields.
func (c *Context) SetupOutputs(fields []fieldtype.Description, names []string) {
	for i, name := range names {
		c.variableNames[name] = struct{}{}
		id := c.AddUnscopedDataField(name, fields[i], fieldtype.OriginOutput)
		if fields[i].Type != fieldtype.Invalid {
			c.outputs[name] = id
		}
	}
}

// AddUnscopedDataField declares a new field that lives for the whole
// compilation (not released by any guard), sanitising its name for
// uniqueness first.
func (c *Context) AddUnscopedDataField(key string, field fieldtype.Description, origin fieldtype.Origin) fieldtype.ID {
	field.Origin = origin
	field.Name = c.MakeSaneAndUniqueVariable(key)
	id := c.Registry.Add(field)
	c.dataDictionary[key] = append(c.dataDictionary[key], dataDictEntry{field: id})
	return id
}

// GetFieldDescription finds the most recently declared field bound to name,
// or fieldtype.InvalidID if none exists.
func (c *Context) GetFieldDescription(name string) fieldtype.ID {
	entries := c.dataDictionary[name]
	if len(entries) == 0 {
		return fieldtype.InvalidID
	}
	return entries[len(entries)-1].field
}

// GetMiningField returns the current model's mining-schema entry for name,
// if any.
func (c *Context) GetMiningField(name string) (fieldtype.MiningField, bool) {
	mf, ok := c.miningSchema[name]
	return mf, ok
}

// AddDefaultMiningField registers a field in the mining schema with no
// bounds or replacement handling — used for fields referenced outside any
// <MiningSchema> (derived fields, function parameters).
func (c *Context) AddDefaultMiningField(name string, field fieldtype.ID) {
	c.miningSchema[name] = fieldtype.MiningField{Field: field}
}

// DeclareCustomFunction registers a PMML DefineFunction.
func (c *Context) DeclareCustomFunction(name string, target fieldtype.ID, outputType fieldtype.Type, lambda *catalog.Definition, params []fieldtype.Type) {
	c.customFunctions[name] = CustomFunction{Target: target, OutputType: outputType, Lambda: lambda, Parameters: params}
}

// FindCustomFunction looks up a user-defined function by PMML name.
func (c *Context) FindCustomFunction(name string) (CustomFunction, bool) {
	cf, ok := c.customFunctions[name]
	return cf, ok
}

// CreateVariable allocates a brand new compiler-internal variable (no
// PMML-visible field backs it).
func (c *Context) CreateVariable(t fieldtype.Type, name string, origin fieldtype.Origin) fieldtype.ID {
	return c.Registry.Add(fieldtype.Description{
		Type:   t,
		Origin: origin,
		Name:   c.MakeSaneAndUniqueVariable(name),
	})
}

// IsLoadingTransformationDictionary reports whether derived-field templates
// are currently being imported through the mining schema (true) or parsed
// standalone, e.g. for a custom function body (false).
func (c *Context) IsLoadingTransformationDictionary() bool { return c.loadingTransformationDictionary }

// SetLoadingTransformationDictionary toggles the mode above.
func (c *Context) SetLoadingTransformationDictionary(loading bool) {
	c.loadingTransformationDictionary = loading
}

// SetTransformationDictionary installs the document-wide derived-field
// template table, built once and shared read-only across every model. The
// values are stored type-erased; see the comment on the
// transformationDictionary field.
func (c *Context) SetTransformationDictionary(dict map[string]interface{}) {
	c.transformationDictionary = dict
}

// TransformationDictionary returns the current template by name, if any,
// still type-erased as interface{}; the caller asserts it back to its
// concrete type.
func (c *Context) TransformationDictionary(name string) (interface{}, bool) {
	t, ok := c.transformationDictionary[name]
	return t, ok
}

// MarkNeuron records a neural-network neuron's output field under its id,
// returning false if that id was already marked (a duplicate <Neuron id=...>
// is malformed input).
func (c *Context) MarkNeuron(id string, field fieldtype.ID) bool {
	if _, exists := c.neurons[id]; exists {
		return false
	}
	c.neurons[id] = field
	return true
}

// FindNeuron looks up a neuron's output field by id.
func (c *Context) FindNeuron(id string) (fieldtype.ID, bool) {
	f, ok := c.neurons[id]
	return f, ok
}

// Inputs returns the active input fields of the compilation.
func (c *Context) Inputs() map[string]fieldtype.ID { return c.inputs }

// Outputs returns the declared output fields of the compilation.
func (c *Context) Outputs() map[string]fieldtype.ID { return c.outputs }

// Application returns the producing-application name from the PMML header,
// if any — consulted for the JPMML-SkLearn mapMissingTo/defaultValue quirk.
func (c *Context) Application() string { return c.application }

// SetApplication records the producing-application name.
func (c *Context) SetApplication(app string) { c.application = app }

// HasVariableNamed reports whether name has already been allocated as a
// target-language identifier.
func (c *Context) HasVariableNamed(name string) bool {
	_, ok := c.variableNames[name]
	return ok
}

// MakeSaneAndUniqueVariable sanitises key into a valid target-language
// identifier and, if that collides with one already allocated, appends a
// numeric suffix found by a digit-carry search, chosen for speed on
// documents with tens of thousands of near-identical generated names (e.g.
// gradient-boosted-tree leaves).
func (c *Context) MakeSaneAndUniqueVariable(key string) string {
	sanitised := sanitiseIdentifier(key)

	if _, used := c.variableNames[sanitised]; !used {
		c.variableNames[sanitised] = struct{}{}
		return sanitised
	}

	// sanitised didn't work; start appending a numeric suffix, searching in
	// ascending numeric order for the first unused one, the same way the
	// original's carry loop does: "_1", "_2", ..., "_9", "_10", "_11", ...
	base := []byte(sanitised)
	base = append(base, '_')
	offset := len(base) - 1

	for depth := 1; ; depth++ {
		// the smallest depth-digit suffix: "1", "10", "100", ...
		candidate := append(append([]byte{}, base...), '1')
		for k := 1; k < depth; k++ {
			candidate = append(candidate, '0')
		}
		for {
			s := string(candidate)
			if _, used := c.variableNames[s]; !used {
				c.variableNames[s] = struct{}{}
				return s
			}
			// increment the bottom column and carry.
			carried := false
			for i := depth; i > 0; i-- {
				if candidate[offset+i] < '9' {
					candidate[offset+i]++
					carried = true
					break
				}
				candidate[offset+i] = '0'
			}
			if carried {
				continue
			}
			// every column wrapped: extend to the next depth.
			break
		}
	}
}

func sanitiseIdentifier(key string) string {
	var sb strings.Builder
	sb.Grow(len(key) + 1)
	if key == "" || unicode.IsDigit(rune(key[0])) {
		sb.WriteByte('_')
	}
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// ScopedVariableGuard releases every field it added when it goes out of
// scope, matching the original's RAII ScopedVariableDefinitionStackGuard.
// Call Release via defer immediately after construction.
type ScopedVariableGuard struct {
	context *Context
	added   []string
}

// NewScopedVariableGuard starts a new lexical scope of field declarations.
func NewScopedVariableGuard(c *Context) *ScopedVariableGuard {
	return &ScopedVariableGuard{context: c}
}

// AddDataField declares a field visible only until Release is called.
func (g *ScopedVariableGuard) AddDataField(name string, t fieldtype.Type, origin fieldtype.Origin, opType fieldtype.OpType) fieldtype.ID {
	id := g.context.Registry.Add(fieldtype.Description{
		Type:   t,
		OpType: opType,
		Origin: origin,
		Name:   g.context.MakeSaneAndUniqueVariable(name),
	})
	g.context.dataDictionary[name] = append(g.context.dataDictionary[name], dataDictEntry{field: id})
	g.added = append(g.added, name)
	return id
}

// Release removes every field this guard added, in LIFO order.
func (g *ScopedVariableGuard) Release() {
	for i := len(g.added) - 1; i >= 0; i-- {
		name := g.added[i]
		entries := g.context.dataDictionary[name]
		if len(entries) > 0 {
			g.context.dataDictionary[name] = entries[:len(entries)-1]
		}
	}
	g.added = nil
}

// MiningSchemaGuard swaps a new mining schema into the Context for the
// duration of one model and swaps the parent's back out on Release,
// matching MiningSchemaStackGuard's RAII swap-and-restore.
type MiningSchemaGuard struct {
	context  *Context
	previous map[string]fieldtype.MiningField
	target   fieldtype.ID
	valid    bool
}

// MiningFieldUsage is the closed set of <MiningField usageType=...> values
// this compiler understands; anything else behaves like usageIn.
type MiningFieldUsage int

const (
	UsageIn MiningFieldUsage = iota
	UsageOut
	UsagePredicted
	UsageSupplementary
)

// MiningFieldXML is the minimal per-<MiningField> data the caller (a model
// parser) must extract from the DOM before building the guard; kept free of
// any xmldom dependency so pmmlctx has no import on pkg/xmldom.
type MiningFieldXML struct {
	Name                    string
	Usage                   MiningFieldUsage
	HasBounds               bool
	LowValue, HighValue     float64
	OutlierTreatmentString  string
	HasReplacementValue     bool
	MissingValueReplacement string
}

// onMissingField is invoked once per <MiningField> that names a field this
// context doesn't know about — a malformed-input condition the caller
// reports through whatever error-hook it's wired to.
type onMissingField func(fieldName string)

// NewMiningSchemaGuard builds the model-scoped mining schema described by
// fields, swapping it into the context. Bound/replacement entries inherit
// from the parent schema first (for nested models in an ensemble) and are
// then overridden by this model's own <MiningField> attributes.
func NewMiningSchemaGuard(c *Context, fields []MiningFieldXML, onMissing onMissingField) *MiningSchemaGuard {
	g := &MiningSchemaGuard{context: c, valid: true}
	newSchema := map[string]fieldtype.MiningField{}

	for _, mf := range fields {
		id := c.GetFieldDescription(mf.Name)
		switch mf.Usage {
		case UsageOut, UsagePredicted:
			g.target = id
		default:
			if id == fieldtype.InvalidID {
				if onMissing != nil {
					onMissing(mf.Name)
				}
				g.valid = false
				continue
			}
			entry := fieldtype.MiningField{Field: id}
			if parent, ok := c.miningSchema[mf.Name]; ok {
				entry = parent
				entry.Field = id
			}
			if mf.HasBounds {
				entry.HasBounds = true
				entry.MinValue = mf.LowValue
				entry.MaxValue = mf.HighValue
				entry.OutlierTreatment = fieldtype.OutlierTreatmentFromString(mf.OutlierTreatmentString)
			}
			if mf.HasReplacementValue {
				entry.HasReplacementValue = true
				entry.ReplacementValue = mf.MissingValueReplacement
			}
			newSchema[mf.Name] = entry
		}
	}

	g.previous = c.miningSchema
	c.miningSchema = newSchema
	return g
}

// TargetField returns the field bound to the model's usageType="predicted"
// / "target" mining field, if any.
func (g *MiningSchemaGuard) TargetField() fieldtype.ID { return g.target }

// Valid reports whether every required input field resolved successfully.
func (g *MiningSchemaGuard) Valid() bool { return g.valid }

// Release restores the parent model's mining schema.
func (g *MiningSchemaGuard) Release() {
	g.context.miningSchema = g.previous
}
