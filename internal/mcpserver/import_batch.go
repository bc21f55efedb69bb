package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/vigor/internal/parser"
)

const maxBatchSize = 1 << 20 // 1 MB

var safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type importResult struct {
	SavedPath string `json:"savedPath"`
	Imported  *int   `json:"imported,omitempty"`
	Failed    *int   `json:"failed,omitempty"`
}

// importBatch drops a YAML batch into the inbox. The content is parsed
// first so obvious mistakes are reported to the caller instead of ending up
// in failed/.
func (s *Server) importBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(content) > maxBatchSize {
		return mcp.NewToolResultError(fmt.Sprintf("batch too large: %d bytes (max %d)", len(content), maxBatchSize)), nil
	}
	if _, err := parser.Parse([]byte(content)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := sanitizeFilename(req.GetString("filename", ""))
	if err := s.inbox.Create(name, []byte(content)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return mcp.NewToolResultError(fmt.Sprintf("batch already exists: %s", name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := importResult{SavedPath: name}
	if s.sync != nil {
		rep, err := s.sync.Sync(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res.Imported = &rep.Imported
		res.Failed = &rep.Failed
	}
	return jsonResult(res)
}

// sanitizeFilename returns a flat inbox file name ending in .yaml.
// An empty name becomes mcp-<uuid>.yaml.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = safeFilenameRe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "mcp-" + uuid.NewString()
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".yaml" && ext != ".yml" {
		name += ".yaml"
	}
	return name
}
