package content

// SupportLevel classifies who maintains a pack. Validators use it to scope
// rule severity.
type SupportLevel string

const (
	SupportXSOAR     SupportLevel = "xsoar"
	SupportPartner   SupportLevel = "partner"
	SupportDeveloper SupportLevel = "developer"
	SupportCommunity SupportLevel = "community"
)

// Valid reports whether s is a known support level.
func (s SupportLevel) Valid() bool {
	switch s {
	case SupportXSOAR, SupportPartner, SupportDeveloper, SupportCommunity:
		return true
	}
	return false
}

// Variant-specific property keys.
const (
	PropCurrentVersion   = "current_version"
	PropServerMinVersion = "server_min_version"
	PropHidden           = "hidden"
	PropSupportLevel     = "support"
	PropExcludedDeps     = "excluded_dependencies"
	PropTags             = "tags"
	PropCategories       = "categories"
	PropUseCases         = "use_cases"
	PropCategory         = "category"
	PropDockerImage      = "docker_image"
	PropIsFetch          = "is_fetch"
	PropIsFetchEvents    = "is_fetch_events"
	PropCommands         = "commands"
	PropParams           = "params"
	PropScriptType       = "type"
	PropSkipPrepare      = "skip_prepare"
	PropCLIName          = "cli_name"
	PropAliases          = "aliases"
	PropSchemaKeys       = "schema_keys"
	PropMappingType      = "mapping_type"
)

// PackData carries the Pack variant fields.
type PackData struct {
	CurrentVersion   string
	ServerMinVersion string
	Hidden           bool
	SupportLevel     SupportLevel

	// ExcludedDependencies lists pack ids this pack must never depend on.
	ExcludedDependencies []string

	Tags       []string
	Categories []string
	UseCases   []string
}

func (d *PackData) putProperties(p map[string]any) {
	p[PropCurrentVersion] = d.CurrentVersion
	p[PropServerMinVersion] = d.ServerMinVersion
	p[PropHidden] = d.Hidden
	p[PropSupportLevel] = string(d.SupportLevel)
	p[PropExcludedDeps] = d.ExcludedDependencies
	p[PropTags] = d.Tags
	p[PropCategories] = d.Categories
	p[PropUseCases] = d.UseCases
}

func (d *PackData) readProperties(p map[string]any) {
	d.CurrentVersion = getString(p, PropCurrentVersion)
	d.ServerMinVersion = getString(p, PropServerMinVersion)
	d.Hidden = getBool(p, PropHidden)
	d.SupportLevel = SupportLevel(getString(p, PropSupportLevel))
	d.ExcludedDependencies = getStrings(p, PropExcludedDeps)
	d.Tags = getStrings(p, PropTags)
	d.Categories = getStrings(p, PropCategories)
	d.UseCases = getStrings(p, PropUseCases)
}

// IntegrationData carries the Integration variant fields. Per-command detail
// (description, deprecated, quickaction) lives on HAS_COMMAND edges; Commands
// holds the declared command names in declaration order.
type IntegrationData struct {
	Category      string
	DockerImage   string
	IsFetch       bool
	IsFetchEvents bool
	Commands      []string

	// Params holds the declared configuration parameter names, display
	// name first when one is set.
	Params []string
}

func (d *IntegrationData) putProperties(p map[string]any) {
	p[PropCategory] = d.Category
	p[PropDockerImage] = d.DockerImage
	p[PropIsFetch] = d.IsFetch
	p[PropIsFetchEvents] = d.IsFetchEvents
	p[PropCommands] = d.Commands
	p[PropParams] = d.Params
}

func (d *IntegrationData) readProperties(p map[string]any) {
	d.Category = getString(p, PropCategory)
	d.DockerImage = getString(p, PropDockerImage)
	d.IsFetch = getBool(p, PropIsFetch)
	d.IsFetchEvents = getBool(p, PropIsFetchEvents)
	d.Commands = getStrings(p, PropCommands)
	d.Params = getStrings(p, PropParams)
}

// ScriptData carries the Script variant fields.
type ScriptData struct {
	// ScriptType is python2, python3, powershell or javascript.
	ScriptType  string
	DockerImage string
	Tags        []string
	SkipPrepare []string
}

func (d *ScriptData) putProperties(p map[string]any) {
	p[PropScriptType] = d.ScriptType
	p[PropDockerImage] = d.DockerImage
	p[PropTags] = d.Tags
	p[PropSkipPrepare] = d.SkipPrepare
}

func (d *ScriptData) readProperties(p map[string]any) {
	d.ScriptType = getString(p, PropScriptType)
	d.DockerImage = getString(p, PropDockerImage)
	d.Tags = getStrings(p, PropTags)
	d.SkipPrepare = getStrings(p, PropSkipPrepare)
}

// FieldData carries incident/indicator/case/generic field variant fields.
// CLIName doubles as a secondary lookup key for USES_BY_CLI_NAME resolution.
type FieldData struct {
	CLIName string
	Aliases []string
}

func (d *FieldData) putProperties(p map[string]any) {
	p[PropCLIName] = d.CLIName
	p[PropAliases] = d.Aliases
}

func (d *FieldData) readProperties(p map[string]any) {
	d.CLIName = getString(p, PropCLIName)
	d.Aliases = getStrings(p, PropAliases)
}

// RuleData carries modeling/parsing rule variant fields. SchemaKeys are the
// top-level keys of the sibling _schema.json file.
type RuleData struct {
	SchemaKeys []string
}

func (d *RuleData) putProperties(p map[string]any) {
	p[PropSchemaKeys] = d.SchemaKeys
}

func (d *RuleData) readProperties(p map[string]any) {
	d.SchemaKeys = getStrings(p, PropSchemaKeys)
}

// ClassifierData carries classifier/mapper variant fields. MappingType is
// "mapping-incoming" or "mapping-outgoing" for mappers and "classification"
// for classifiers; it is the only signal distinguishing the two.
type ClassifierData struct {
	MappingType string
}

func (d *ClassifierData) putProperties(p map[string]any) {
	p[PropMappingType] = d.MappingType
}

func (d *ClassifierData) readProperties(p map[string]any) {
	d.MappingType = getString(p, PropMappingType)
}
