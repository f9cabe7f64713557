package research

import (
	"context"
	"fmt"

	"dossier/internal/tools"
)

// placeholder builds a tool that shares the real contract but has no source
// behind it. It always answers with an explicit no-data result.
func placeholder(name, description string, category tools.ToolCategory, source string) *tools.Tool {
	return &tools.Tool{
		Name:        name,
		Description: description,
		Category:    category,
		Priority:    10,
		Placeholder: true,
		Execute: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			entity, _ := args["entity_name"].(string)
			return tools.NoData(fmt.Sprintf("%s is not configured; nothing searched for %q", source, entity)), nil
		},
		Schema: entitySchema(),
	}
}

func entitySchema() tools.ToolSchema {
	return tools.ToolSchema{
		Required: []string{"entity_name"},
		Properties: map[string]tools.Property{
			"entity_name": {
				Type:        "string",
				Description: "Name of the person or organisation to look up",
			},
		},
	}
}

// SocialMediaTool returns the social_media_search placeholder.
func SocialMediaTool() *tools.Tool {
	return placeholder("social_media_search",
		"Search social media platforms for public profiles and posts about an entity.",
		tools.CategorySocial, "social media source")
}

// CompanyDatabaseTool returns the company_database_search placeholder.
func CompanyDatabaseTool() *tools.Tool {
	return placeholder("company_database_search",
		"Search company registries for directorships and officer records of an entity.",
		tools.CategoryCorporate, "company registry")
}

// AcademicTool returns the academic_search placeholder.
func AcademicTool() *tools.Tool {
	return placeholder("academic_search",
		"Search academic publications and institutional directories for an entity.",
		tools.CategoryAcademic, "academic index")
}

// disabledWebSearch keeps web_search in the catalog when live search is off.
func disabledWebSearch() *tools.Tool {
	t := placeholder("web_search",
		"Search the open web for information about the subject.",
		tools.CategoryWeb, "web search")
	t.Schema = tools.ToolSchema{
		Required:   []string{"query"},
		Properties: map[string]tools.Property{"query": {Type: "string", Description: "The search query"}},
	}
	t.Execute = func(ctx context.Context, args map[string]any) (*tools.Result, error) {
		return tools.NoData("web search is disabled"), nil
	}
	return t
}
