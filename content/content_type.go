package content

import "strings"

// ContentType identifies the kind of artifact a node represents.
// The string values double as graph labels.
type ContentType string

const (
	TypeBaseNode        ContentType = "BaseNode"
	TypeBaseContent     ContentType = "BaseContent"
	TypeBasePlaybook    ContentType = "BasePlaybook"
	TypeBaseScript      ContentType = "BaseScript"
	TypeCommandOrScript ContentType = "CommandOrScript"

	TypePack              ContentType = "Pack"
	TypeCommand           ContentType = "Command"
	TypeIntegration       ContentType = "Integration"
	TypeScript            ContentType = "Script"
	TypeTestScript        ContentType = "TestScript"
	TypePlaybook          ContentType = "Playbook"
	TypeTestPlaybook      ContentType = "TestPlaybook"
	TypeClassifier        ContentType = "Classifier"
	TypeMapper            ContentType = "Mapper"
	TypeIncidentField     ContentType = "IncidentField"
	TypeIncidentType      ContentType = "IncidentType"
	TypeIndicatorField    ContentType = "IndicatorField"
	TypeIndicatorType     ContentType = "IndicatorType"
	TypeLayout            ContentType = "Layout"
	TypeLayoutRule        ContentType = "LayoutRule"
	TypeDashboard         ContentType = "Dashboard"
	TypeReport            ContentType = "Report"
	TypeWidget            ContentType = "Widget"
	TypeJob               ContentType = "Job"
	TypeList              ContentType = "List"
	TypeModelingRule      ContentType = "ModelingRule"
	TypeParsingRule       ContentType = "ParsingRule"
	TypeCorrelationRule   ContentType = "CorrelationRule"
	TypeTrigger           ContentType = "Trigger"
	TypeWizard            ContentType = "Wizard"
	TypeXSIAMDashboard    ContentType = "XSIAMDashboard"
	TypeXSIAMReport       ContentType = "XSIAMReport"
	TypeXDRCTemplate      ContentType = "XDRCTemplate"
	TypeGenericField      ContentType = "GenericField"
	TypeGenericType       ContentType = "GenericType"
	TypeGenericModule     ContentType = "GenericModule"
	TypeGenericDefinition ContentType = "GenericDefinition"
	TypeCaseField         ContentType = "CaseField"
	TypeCaseLayout        ContentType = "CaseLayout"
	TypeCaseLayoutRule    ContentType = "CaseLayoutRule"
	TypePreProcessRule    ContentType = "PreProcessRule"
	TypeConnection        ContentType = "Connection"

	// File kinds recognized by the classifier but never persisted as graph nodes.
	TypePackMeta         ContentType = "PackMeta"
	TypePackIgnore       ContentType = "PackIgnore"
	TypeSecretIgnore     ContentType = "SecretIgnore"
	TypeOldIndicatorType ContentType = "OldIndicatorType"
	TypeChangeLog        ContentType = "ChangeLog"
	TypeReadme           ContentType = "Readme"
	TypeReleaseNote      ContentType = "ReleaseNote"
	TypeTool             ContentType = "Tool"
	TypeDocFile          ContentType = "DocFile"
)

// contentItemTypes holds every type that is persisted as a ContentItem node.
// Pack and Command are graph nodes too but are not content items.
var contentItemTypes = []ContentType{
	TypeIntegration, TypeScript, TypeTestScript, TypePlaybook, TypeTestPlaybook,
	TypeClassifier, TypeMapper, TypeIncidentField, TypeIncidentType,
	TypeIndicatorField, TypeIndicatorType, TypeLayout, TypeLayoutRule,
	TypeDashboard, TypeReport, TypeWidget, TypeJob, TypeList,
	TypeModelingRule, TypeParsingRule, TypeCorrelationRule, TypeTrigger,
	TypeWizard, TypeXSIAMDashboard, TypeXSIAMReport, TypeXDRCTemplate,
	TypeGenericField, TypeGenericType, TypeGenericModule, TypeGenericDefinition,
	TypeCaseField, TypeCaseLayout, TypeCaseLayoutRule, TypePreProcessRule,
	TypeConnection,
}

// ContentItemTypes returns every type persisted as a ContentItem node,
// in a stable order.
func ContentItemTypes() []ContentType {
	out := make([]ContentType, len(contentItemTypes))
	copy(out, contentItemTypes)
	return out
}

// GraphNodeTypes returns every concrete type persisted to the graph:
// all content item types plus Pack and Command.
func GraphNodeTypes() []ContentType {
	return append(ContentItemTypes(), TypePack, TypeCommand)
}

// IsContentItem reports whether nodes of this type carry the shared
// ContentItem field set (everything persisted except Pack and Command).
func (c ContentType) IsContentItem() bool {
	for _, t := range contentItemTypes {
		if c == t {
			return true
		}
	}
	return false
}

// IsGraphNode reports whether this type is persisted to the graph at all.
func (c ContentType) IsGraphNode() bool {
	return c == TypePack || c == TypeCommand || c.IsContentItem()
}

// Labels returns the graph labels attached to a node of this type:
// the concrete type plus the derivable abstract labels.
func (c ContentType) Labels() []string {
	labels := []string{string(TypeBaseNode)}
	if c != TypeCommand {
		labels = append(labels, string(TypeBaseContent))
	}
	switch c {
	case TypePlaybook, TypeTestPlaybook:
		labels = append(labels, string(TypeBasePlaybook))
	case TypeScript, TypeTestScript:
		labels = append(labels, string(TypeBaseScript), string(TypeCommandOrScript))
	case TypeCommand:
		labels = append(labels, string(TypeCommandOrScript))
	}
	return append(labels, string(c))
}

// folderToType maps a pack sub-folder name to the content type stored there.
// TestPlaybooks is absent: it holds both TestPlaybook and TestScript files and
// is resolved by the classifier.
var folderToType = map[string]ContentType{
	"Integrations":       TypeIntegration,
	"Scripts":            TypeScript,
	"Playbooks":          TypePlaybook,
	"Classifiers":        TypeClassifier,
	"Connections":        TypeConnection,
	"Dashboards":         TypeDashboard,
	"IncidentFields":     TypeIncidentField,
	"IncidentTypes":      TypeIncidentType,
	"IndicatorFields":    TypeIndicatorField,
	"IndicatorTypes":     TypeIndicatorType,
	"Layouts":            TypeLayout,
	"LayoutRules":        TypeLayoutRule,
	"Reports":            TypeReport,
	"Widgets":            TypeWidget,
	"ReleaseNotes":       TypeReleaseNote,
	"Tools":              TypeTool,
	"Doc Files":          TypeDocFile,
	"ModelingRules":      TypeModelingRule,
	"ParsingRules":       TypeParsingRule,
	"CorrelationRules":   TypeCorrelationRule,
	"XSIAMDashboards":    TypeXSIAMDashboard,
	"XSIAMReports":       TypeXSIAMReport,
	"XDRCTemplates":      TypeXDRCTemplate,
	"Triggers":           TypeTrigger,
	"Wizards":            TypeWizard,
	"Jobs":               TypeJob,
	"Lists":              TypeList,
	"PreProcessRules":    TypePreProcessRule,
	"GenericFields":      TypeGenericField,
	"GenericTypes":       TypeGenericType,
	"GenericModules":     TypeGenericModule,
	"GenericDefinitions": TypeGenericDefinition,
	"CaseFields":         TypeCaseField,
	"CaseLayouts":        TypeCaseLayout,
	"CaseLayoutRules":    TypeCaseLayoutRule,
}

// TypeByFolder returns the content type stored under the given pack
// sub-folder name, or false when the folder is not recognized.
func TypeByFolder(folder string) (ContentType, bool) {
	t, ok := folderToType[folder]
	return t, ok
}

// AsFolder returns the pack sub-folder this type is stored under.
// Mapper shares the Classifiers folder with Classifier.
func (c ContentType) AsFolder() string {
	if c == TypeMapper {
		return TypeClassifier.AsFolder()
	}
	if c == TypeTestPlaybook || c == TypeTestScript {
		return "TestPlaybooks"
	}
	for folder, t := range folderToType {
		if t == c {
			return folder
		}
	}
	return string(c) + "s"
}

// ServerName returns the identifier the server uses for this type in
// unified file prefixes. A handful of types diverge from the lowercase form.
func (c ContentType) ServerName() string {
	switch c {
	case TypeScript, TypeTestScript:
		return "automation"
	case TypeIndicatorType:
		return "reputation"
	case TypeIndicatorField:
		return "incidentfield-indicatorfield"
	case TypeLayout:
		return "layoutscontainer"
	case TypePreProcessRule:
		return "pre-process-rule"
	case TypeTestPlaybook:
		return TypePlaybook.ServerName()
	}
	return strings.ToLower(string(c))
}
