// Package mcpserver exposes the Dataverse client as MCP tools over stdio,
// so AI assistants can configure a connection and run record operations
// through the standard MCP protocol.
package mcpserver

import (
	"context"

	"github.com/erauner12/dataverse-mcp/internal/dataverse"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the Dataverse client behind an MCP stdio server.
type Server struct {
	client    *dataverse.Client
	mcpServer *server.MCPServer
}

// New creates an MCP server exposing the five Dataverse tools.
func New(client *dataverse.Client) *Server {
	mcpServer := server.NewMCPServer(
		"dataverse-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s := &Server{
		client:    client,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s
}

// Start serves the MCP protocol on stdio. Blocks until the transport closes.
func (s *Server) Start(ctx context.Context) error {
	return server.ServeStdio(s.mcpServer)
}

// registerTools registers all Dataverse tools with the MCP server.
func (s *Server) registerTools() {
	configureTool := mcp.NewTool("configure_dataverse",
		mcp.WithDescription("Configure Dataverse connection settings using OAuth client credentials"),
		mcp.WithString("dataverse_url",
			mcp.Required(),
			mcp.Description("The Dataverse organization URL (e.g. 'https://yourorg.crm.dynamics.com')"),
		),
		mcp.WithString("client_id",
			mcp.Required(),
			mcp.Description("Azure AD application (client) ID"),
		),
		mcp.WithString("client_secret",
			mcp.Required(),
			mcp.Description("Azure AD application client secret"),
		),
		mcp.WithString("tenant_id",
			mcp.Required(),
			mcp.Description("Azure AD tenant ID"),
		),
	)
	s.mcpServer.AddTool(configureTool, s.handleConfigure)

	queryTool := mcp.NewTool("query_dataverse",
		mcp.WithDescription("Query Dataverse entities using OData syntax"),
		mcp.WithString("entity_name",
			mcp.Required(),
			mcp.Description("The logical name of the entity to query (e.g. 'accounts', 'contacts')"),
		),
		mcp.WithString("select_fields",
			mcp.Description("Comma-separated list of fields to select (e.g. 'name,accountid')"),
		),
		mcp.WithString("filter_query",
			mcp.Description("OData filter query (e.g. \"revenue gt 100000\")"),
		),
		mcp.WithNumber("top",
			mcp.Description("Maximum number of records to return (default: 10)"),
		),
	)
	s.mcpServer.AddTool(queryTool, s.handleQuery)

	createTool := mcp.NewTool("create_dataverse_record",
		mcp.WithDescription("Create a new record in Dataverse"),
		mcp.WithString("entity_name",
			mcp.Required(),
			mcp.Description("The logical name of the entity (e.g. 'accounts', 'contacts')"),
		),
		mcp.WithString("record_data",
			mcp.Required(),
			mcp.Description("JSON string containing the record data"),
		),
	)
	s.mcpServer.AddTool(createTool, s.handleCreate)

	updateTool := mcp.NewTool("update_dataverse_record",
		mcp.WithDescription("Update an existing record in Dataverse"),
		mcp.WithString("entity_name",
			mcp.Required(),
			mcp.Description("The logical name of the entity (e.g. 'accounts', 'contacts')"),
		),
		mcp.WithString("record_id",
			mcp.Required(),
			mcp.Description("The GUID of the record to update"),
		),
		mcp.WithString("record_data",
			mcp.Required(),
			mcp.Description("JSON string containing the fields to update"),
		),
	)
	s.mcpServer.AddTool(updateTool, s.handleUpdate)

	deleteTool := mcp.NewTool("delete_dataverse_record",
		mcp.WithDescription("Delete a record from Dataverse"),
		mcp.WithString("entity_name",
			mcp.Required(),
			mcp.Description("The logical name of the entity (e.g. 'accounts', 'contacts')"),
		),
		mcp.WithString("record_id",
			mcp.Required(),
			mcp.Description("The GUID of the record to delete"),
		),
	)
	s.mcpServer.AddTool(deleteTool, s.handleDelete)
}
