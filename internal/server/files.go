package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// Files API over the document storage directory. Documents are markdown
// files directly under the docs dir; the file name (with extension) doubles
// as the session document id, so deleting a file cascades into destroying
// its session.

type fileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type fileCreateReq struct {
	Name string `json:"name"`
}

func (r *Router) handleFileList(c *gin.Context) {
	entries, err := os.ReadDir(r.orch.DocsDir())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{Name: e.Name(), Size: fi.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	writeJSON(c, http.StatusOK, files)
}

func (r *Router) handleFileCreate(c *gin.Context) {
	var req fileCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	name := req.Name
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid file name"})
		return
	}
	path := filepath.Join(r.orch.DocsDir(), name)
	if _, err := os.Stat(path); err == nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: "file already exists: " + name})
		return
	}
	if err := os.WriteFile(path, []byte("# "+strings.TrimSuffix(name, ".md")+"\n"), 0o644); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusCreated, fileInfo{Name: name})
}

func (r *Router) handleFileDelete(c *gin.Context) {
	name := c.Param("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid file name"})
		return
	}
	path := filepath.Join(r.orch.DocsDir(), name)
	if _, err := os.Stat(path); err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no such file: " + name})
		return
	}
	// Session first: its monitor may hold the file open.
	r.orch.Sessions().Destroy(name)
	if err := os.Remove(path); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
