package mcp

import (
	"context"
	"fmt"
	"sort"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harms-haus/jestir/internal/story"
)

type GetEntityInput struct {
	ID   string `json:"id,omitempty" jsonschema:"entity id, e.g. char_001"`
	Name string `json:"name,omitempty" jsonschema:"entity name, used when id is not given"`
	Type string `json:"type,omitempty" jsonschema:"entity type to disambiguate a name"`
}

type ListEntitiesInput struct {
	Type string `json:"type,omitempty" jsonschema:"entity type filter: character, location, or item"`
}

type ListRelationshipsInput struct {
	Entity string `json:"entity,omitempty" jsonschema:"only relationships touching this entity id"`
}

type GetUsageSummaryInput struct{}

type EntityOutput struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Subtype     string         `json:"subtype,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Existing    bool           `json:"existing"`
	ExternalRef string         `json:"external_ref,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Provenance  []int          `json:"provenance,omitempty"`
}

type EntitySummaryOutput struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Existing bool   `json:"existing"`
}

type ListEntitiesOutput struct {
	Entities []EntitySummaryOutput `json:"entities"`
}

type RelationshipOutput struct {
	Type        string   `json:"type"`
	Subject     []string `json:"subject"`
	Object      []string `json:"object"`
	Location    string   `json:"location,omitempty"`
	MentionedAt []int    `json:"mentioned_at,omitempty"`
}

type ListRelationshipsOutput struct {
	Relationships []RelationshipOutput `json:"relationships"`
}

type ModelTotalOutput struct {
	Model   string  `json:"model"`
	Calls   int     `json:"calls"`
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

type GetUsageSummaryOutput struct {
	TotalCalls   int                `json:"total_calls"`
	TotalTokens  int                `json:"total_tokens"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	Models       []ModelTotalOutput `json:"models,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_entity",
		Description: "Retrieve a story entity by id or name",
	}, s.handleGetEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_entities",
		Description: "List story entities with an optional type filter",
	}, s.handleListEntities)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_relationships",
		Description: "List story relationships, optionally scoped to one entity",
	}, s.handleListRelationships)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_usage_summary",
		Description: "Report token usage and cost for this story",
	}, s.handleGetUsageSummary)
}

func (s *Server) handleGetEntity(ctx context.Context, req *sdk.CallToolRequest, input GetEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	if input.ID == "" && input.Name == "" {
		return nil, EntityOutput{}, fmt.Errorf("id or name is required")
	}
	sc, err := s.loader.Load()
	if err != nil {
		return nil, EntityOutput{}, err
	}

	var entity *story.Entity
	if input.ID != "" {
		entity = sc.Entities[input.ID]
	} else if input.Type != "" {
		entity = sc.FindByNameType(input.Name, input.Type)
	} else {
		for _, t := range []string{story.TypeCharacter, story.TypeLocation, story.TypeItem} {
			if entity = sc.FindByNameType(input.Name, t); entity != nil {
				break
			}
		}
	}
	if entity == nil {
		return nil, EntityOutput{}, fmt.Errorf("entity not found")
	}
	return nil, entityOutput(entity), nil
}

func (s *Server) handleListEntities(ctx context.Context, req *sdk.CallToolRequest, input ListEntitiesInput) (*sdk.CallToolResult, ListEntitiesOutput, error) {
	sc, err := s.loader.Load()
	if err != nil {
		return nil, ListEntitiesOutput{}, err
	}

	ids := make([]string, 0, len(sc.Entities))
	for id := range sc.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	output := make([]EntitySummaryOutput, 0, len(ids))
	for _, id := range ids {
		e := sc.Entities[id]
		if input.Type != "" && e.Type != input.Type {
			continue
		}
		output = append(output, EntitySummaryOutput{
			ID:       e.ID,
			Type:     e.Type,
			Name:     e.Name,
			Existing: e.Existing,
		})
	}
	return nil, ListEntitiesOutput{Entities: output}, nil
}

func (s *Server) handleListRelationships(ctx context.Context, req *sdk.CallToolRequest, input ListRelationshipsInput) (*sdk.CallToolResult, ListRelationshipsOutput, error) {
	sc, err := s.loader.Load()
	if err != nil {
		return nil, ListRelationshipsOutput{}, err
	}

	output := make([]RelationshipOutput, 0, len(sc.Relationships))
	for _, rel := range sc.Relationships {
		if input.Entity != "" && !touches(rel, input.Entity) {
			continue
		}
		output = append(output, RelationshipOutput{
			Type:        rel.Type,
			Subject:     append([]string{}, rel.Subject...),
			Object:      append([]string{}, rel.Object...),
			Location:    rel.Location,
			MentionedAt: append([]int{}, rel.MentionedAt...),
		})
	}
	return nil, ListRelationshipsOutput{Relationships: output}, nil
}

func (s *Server) handleGetUsageSummary(ctx context.Context, req *sdk.CallToolRequest, input GetUsageSummaryInput) (*sdk.CallToolResult, GetUsageSummaryOutput, error) {
	if s.ledger != nil {
		summary, err := s.ledger.Summarize(ctx)
		if err != nil {
			return nil, GetUsageSummaryOutput{}, err
		}
		out := GetUsageSummaryOutput{
			TotalCalls:   summary.TotalCalls,
			TotalTokens:  summary.TotalTokens,
			TotalCostUSD: summary.TotalCostUSD,
		}
		for _, mt := range summary.Models {
			out.Models = append(out.Models, ModelTotalOutput{
				Model:   mt.Model,
				Calls:   mt.Calls,
				Tokens:  mt.Tokens,
				CostUSD: mt.CostUSD,
			})
		}
		return nil, out, nil
	}

	sc, err := s.loader.Load()
	if err != nil {
		return nil, GetUsageSummaryOutput{}, err
	}
	counters := sc.Metadata.TokenUsage
	return nil, GetUsageSummaryOutput{
		TotalCalls:   counters.TotalCalls,
		TotalTokens:  counters.TotalTokens,
		TotalCostUSD: counters.TotalCostUSD,
	}, nil
}

func touches(rel *story.Relationship, id string) bool {
	for _, s := range rel.Subject {
		if s == id {
			return true
		}
	}
	for _, o := range rel.Object {
		if o == id {
			return true
		}
	}
	return rel.Location == id
}

func entityOutput(e *story.Entity) EntityOutput {
	properties := map[string]any{}
	for key, value := range e.Properties {
		properties[key] = value
	}
	return EntityOutput{
		ID:          e.ID,
		Type:        e.Type,
		Subtype:     e.Subtype,
		Name:        e.Name,
		Description: e.Description,
		Existing:    e.Existing,
		ExternalRef: e.ExternalRef,
		Properties:  properties,
		Provenance:  append([]int{}, e.Provenance...),
	}
}
