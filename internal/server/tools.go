// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
)

// Tool names.
const (
	ToolLogFood     = "log_food"
	ToolGetDay      = "get_day"
	ToolNextDay     = "next_day"
	ToolListEntries = "list_entries"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

type LogFoodParams struct {
	UserID      string `json:"user_id" description:"Owner of the log"`
	Description string `json:"description" description:"Free-form description of what was eaten"`
}

type UserParams struct {
	UserID string `json:"user_id" description:"Owner of the log"`
}

type ListEntriesParams struct {
	UserID string `json:"user_id" description:"Owner of the log"`
	Limit  int    `json:"limit,omitempty" description:"Maximum number of entries to return"`
}

// DayReport is the get_day and next_day response.
type DayReport struct {
	Day     models.Day         `json:"day"`
	Entries []models.FoodEntry `json:"entries"`
	Totals  models.DayTotals   `json:"totals"`
}

// LogReport is the log_food response.
type LogReport struct {
	Day      models.Day       `json:"day"`
	EntryIDs []int64          `json:"entry_ids"`
	Dishes   []models.Dish    `json:"dishes"`
	Totals   models.DayTotals `json:"totals"`
}

func (s *Server) registerTools() {
	s.tools = map[string]toolHandler{
		ToolLogFood:     s.handleLogFood,
		ToolGetDay:      s.handleGetDay,
		ToolNextDay:     s.handleNextDay,
		ToolListEntries: s.handleListEntries,
	}
}

// extractParams decodes the request arguments into target.
func extractParams(req *protocol.CallToolRequest, target any) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user_id is required", errInvalidParams)
	}
	return nil
}

// handleLogFood analyses a description and stores the dishes in the user's
// current day.
func (s *Server) handleLogFood(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LogFoodParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", errInvalidParams)
	}

	if err := s.store.SaveUser(ctx, models.User{ID: params.UserID}); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	day, err := s.days.GetOrCreateCurrentDay(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current day: %w", err)
	}

	dishes, err := s.analyzer.Analyze(ctx, params.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze description: %w", err)
	}
	if len(dishes) == 0 {
		return nil, fmt.Errorf("%w: no dishes recognised", errInvalidParams)
	}

	ids, err := s.store.InsertEntries(ctx, params.UserID, day.ID, dishes)
	if err != nil {
		return nil, fmt.Errorf("failed to save entries: %w", err)
	}
	s.metrics.RecordEntries(ctx, len(ids))

	return jsonResult(LogReport{Day: day, EntryIDs: ids, Dishes: dishes, Totals: models.Totals(dishes)})
}

// handleGetDay reports the user's current day with its entries and totals.
func (s *Server) handleGetDay(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params UserParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}

	day, err := s.days.GetOrCreateCurrentDay(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current day: %w", err)
	}
	report, err := s.dayReport(ctx, params.UserID, day)
	if err != nil {
		return nil, err
	}
	return jsonResult(report)
}

// handleNextDay closes the current day and reports the new one.
func (s *Server) handleNextDay(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params UserParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}

	day, err := s.days.CreateNextDay(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to create next day: %w", err)
	}
	return jsonResult(DayReport{Day: day, Entries: []models.FoodEntry{}})
}

// handleListEntries returns the user's most recent entries across days.
func (s *Server) handleListEntries(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListEntriesParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := requireUser(params.UserID); err != nil {
		return nil, err
	}

	if params.Limit <= 0 {
		params.Limit = defaultListLimit
	}
	params.Limit = min(params.Limit, maxListLimit)

	entries, err := s.store.RecentEntries(ctx, params.UserID, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve entries: %w", err)
	}
	if entries == nil {
		entries = []models.FoodEntry{}
	}
	return jsonResult(entries)
}

func (s *Server) dayReport(ctx context.Context, userID string, day models.Day) (DayReport, error) {
	entries, err := s.store.EntriesForDay(ctx, userID, day.ID)
	if err != nil {
		return DayReport{}, fmt.Errorf("failed to retrieve entries: %w", err)
	}
	totals, err := s.store.DayTotals(ctx, userID, day.ID)
	if err != nil {
		return DayReport{}, fmt.Errorf("failed to compute totals: %w", err)
	}
	if entries == nil {
		entries = []models.FoodEntry{}
	}
	return DayReport{Day: day, Entries: entries, Totals: totals}, nil
}
