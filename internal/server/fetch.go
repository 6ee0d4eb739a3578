package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"f2b/internal/apperr"
	"f2b/internal/packager"
	"f2b/internal/store/artifact"
)

// handleFetchZip streams a built archive in fixed-size chunks. The archive
// comes from ?path= / ?project_id= or a JSON {zip_path, project_id} body.
func (s *Server) handleFetchZip(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := FetchZipRequest{ZipPath: q.Get("path"), ProjectID: q.Get("project_id")}
	if in.ZipPath == "" && in.ProjectID == "" && r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, apperr.InvalidInput("invalid json body"))
			return
		}
	}
	in.ZipPath = strings.TrimSpace(in.ZipPath)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if err := s.validate.Struct(in); err != nil {
		writeError(w, apperr.InvalidInput("path or a valid project_id is required"))
		return
	}

	path := in.ZipPath
	if path == "" {
		path = packager.ProjectArchive(s.projectsRoot, in.ProjectID)
	}
	f, size, err := packager.Open(s.projectsRoot, path)
	if err == nil {
		defer f.Close()
		s.sendZip(w, filepath.Base(path), f, size)
		return
	}
	if !apperr.Is(err, apperr.KindNotFound) || in.ProjectID == "" || s.artifacts == nil {
		writeError(w, err)
		return
	}

	b, gerr := s.artifacts.Get(r.Context(), in.ProjectID, packager.ArchiveName)
	switch {
	case errors.Is(gerr, artifact.ErrNotFound):
		writeError(w, err)
		return
	case gerr != nil:
		writeError(w, apperr.Persistence("read mirrored archive", gerr))
		return
	}
	s.log.Debug().Str("project_id", in.ProjectID).Msg("server: fetch-zip served from mirror")
	s.sendZip(w, packager.ArchiveName, bytes.NewReader(b), int64(len(b)))
}

func (s *Server) sendZip(w http.ResponseWriter, name string, src io.Reader, size int64) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, packager.ChunkSize)
	flusher, _ := w.(http.Flusher)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.log.Debug().Err(werr).Str("archive", name).Msg("server: fetch-zip client gone")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return
		}
		if rerr != nil {
			s.log.Warn().Err(rerr).Str("archive", name).Msg("server: fetch-zip read failed")
			return
		}
	}
}

// handleListArtifacts lists the mirrored files of one project.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if err := s.validate.Var(id, "required,uuid"); err != nil {
		writeError(w, apperr.InvalidInput("a valid project_id is required"))
		return
	}
	if s.artifacts == nil {
		writeError(w, apperr.NotFound("artifact mirror is not configured"))
		return
	}
	files, err := s.artifacts.List(r.Context(), id)
	if err != nil {
		writeError(w, apperr.Persistence("list artifacts", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project_id": id, "files": files})
}
