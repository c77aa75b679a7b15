package model

// CustomizationConfig is the optional per-service YAML side file with
// hand-maintained overrides applied on top of the published model.
type CustomizationConfig struct {
	// DeprecatedShapes are excluded from generated exception lists and
	// emitted with deprecation markers elsewhere.
	DeprecatedShapes []string `yaml:"deprecatedShapes,omitempty"`

	// DeprecatedOperations are generated with deprecation markers.
	DeprecatedOperations []string `yaml:"deprecatedOperations,omitempty"`

	// RenameShapes maps model shape names to replacement names, applied
	// before Go identifiers are derived.
	RenameShapes map[string]string `yaml:"renameShapes,omitempty"`

	// ShapeModifiers adjust individual shapes.
	ShapeModifiers map[string]ShapeModifier `yaml:"shapeModifiers,omitempty"`

	// SkipEndpointRuleSet suppresses loading of the endpoint rules file.
	SkipEndpointRuleSet bool `yaml:"skipEndpointRuleSet,omitempty"`
}

// ShapeModifier adjusts one shape.
type ShapeModifier struct {
	// Exclude lists member names to drop from the shape.
	Exclude []string `yaml:"exclude,omitempty"`
}

// ShapeDeprecated reports whether the customization deprecates a shape.
func (c *CustomizationConfig) ShapeDeprecated(name string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.DeprecatedShapes {
		if s == name {
			return true
		}
	}
	return false
}

// OperationDeprecated reports whether the customization deprecates an
// operation.
func (c *CustomizationConfig) OperationDeprecated(name string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.DeprecatedOperations {
		if s == name {
			return true
		}
	}
	return false
}

// RenamedShape returns the effective name of a shape after renames.
func (c *CustomizationConfig) RenamedShape(name string) string {
	if c == nil {
		return name
	}
	if renamed, ok := c.RenameShapes[name]; ok {
		return renamed
	}
	return name
}

// ExcludedMembers returns the member names excluded from a shape.
func (c *CustomizationConfig) ExcludedMembers(shape string) []string {
	if c == nil {
		return nil
	}
	return c.ShapeModifiers[shape].Exclude
}
