package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erauner12/dataverse-mcp/internal/dataverse"
	"github.com/mark3labs/mcp-go/mcp"
)

// Every tool returns a uniform JSON envelope: {"success": true, ...} on
// success, {"success": false, "error": "..."} on failure. Domain failures
// are data for the assistant to act on, not protocol errors; only missing
// or mistyped arguments use mcp.NewToolResultError.

// handleConfigure handles the configure_dataverse tool. The connection is
// stored, the token cache is cleared, and one authentication is attempted to
// validate the credentials. The configuration is retained even when that
// validation fails.
func (s *Server) handleConfigure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	serviceURL, err := request.RequireString("dataverse_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	clientID, err := request.RequireString("client_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	clientSecret, err := request.RequireString("client_secret")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tenantID, err := request.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg := dataverse.Config{
		ServiceURL:   serviceURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TenantID:     tenantID,
	}

	if err := s.client.Configure(ctx, cfg); err != nil {
		return failureResult(fmt.Errorf("configuration saved but authentication failed: %w", err)), nil
	}

	return successResult(map[string]any{
		"message": "Dataverse connection configured and authenticated successfully",
	}), nil
}

// handleQuery handles the query_dataverse tool.
func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityName, err := request.RequireString("entity_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()

	opts := dataverse.QueryOptions{Top: dataverse.DefaultTop}
	if selectFields, ok := args["select_fields"].(string); ok && selectFields != "" {
		opts.Select = strings.Split(selectFields, ",")
	}
	if filter, ok := args["filter_query"].(string); ok {
		opts.Filter = filter
	}
	// JSON numbers arrive as float64
	if top, ok := args["top"].(float64); ok {
		opts.Top = int(top)
	}

	result, err := s.client.Query(ctx, entityName, opts)
	if err != nil {
		return failureResult(err), nil
	}

	return successResult(map[string]any{
		"data":  result.Records,
		"count": result.Count,
	}), nil
}

// handleCreate handles the create_dataverse_record tool.
func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityName, err := request.RequireString("entity_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordData, err := request.RequireString("record_data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.client.Create(ctx, entityName, recordData)
	if err != nil {
		return failureResult(err), nil
	}

	// record_id is null when the service omitted the OData-EntityId header
	var recordID any
	if result.ID != "" {
		recordID = result.ID
	}

	return successResult(map[string]any{
		"record_id":  recordID,
		"record_url": result.URL,
	}), nil
}

// handleUpdate handles the update_dataverse_record tool.
func (s *Server) handleUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityName, err := request.RequireString("entity_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordID, err := request.RequireString("record_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordData, err := request.RequireString("record_data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.client.Update(ctx, entityName, recordID, recordData); err != nil {
		return failureResult(err), nil
	}

	return successResult(map[string]any{
		"record_id": recordID,
	}), nil
}

// handleDelete handles the delete_dataverse_record tool.
func (s *Server) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityName, err := request.RequireString("entity_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recordID, err := request.RequireString("record_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.client.Delete(ctx, entityName, recordID); err != nil {
		return failureResult(err), nil
	}

	return successResult(map[string]any{
		"record_id": recordID,
	}), nil
}

// successResult builds the success envelope as a JSON text result.
func successResult(fields map[string]any) *mcp.CallToolResult {
	payload := map[string]any{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	return envelopeResult(payload)
}

// failureResult builds the failure envelope as a JSON text result.
func failureResult(err error) *mcp.CallToolResult {
	return envelopeResult(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func envelopeResult(payload map[string]any) *mcp.CallToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
