package bridge

import (
	"net/http"
	"time"
)

func (s *Server) registerFileTransferRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/filetransfer/send", s.requireAuth(s.handleFileTransferSend))
	mux.HandleFunc("GET /api/filetransfer/transfers/{user}", s.requireAuth(s.handleFileTransferList))
	mux.HandleFunc("GET /api/filetransfer/downloads", s.requireAuth(s.handleFileTransferDownloads))
	mux.HandleFunc("GET /api/filetransfer/download/{filename}", s.requireAuth(s.handleFileTransferDownload))
}

func (s *Server) handleFileTransferSend(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "file transfer is not configured")
		return
	}

	var req struct {
		PeerIP         string `json:"peerIp"`
		PeerPort       int    `json:"peerPort"`
		FilePath       string `json:"filePath"`
		SenderUsername string `json:"senderUsername"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	transferID, filename, filesize, err := s.sender.Send(r.Context(), req.SenderUsername, req.PeerIP, req.PeerPort, req.FilePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"transferId": transferID,
		"filename":   filename,
		"filesize":   filesize,
		"message":    "transfer started",
	})
}

func (s *Server) handleFileTransferList(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeJSON(w, http.StatusOK, []TransferProgress{})
		return
	}
	user := pathValue(r, "user")
	writeJSON(w, http.StatusOK, s.sender.TransfersFor(user))
}

func (s *Server) handleFileTransferDownloads(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeJSON(w, http.StatusOK, []DownloadedFile{})
		return
	}
	writeJSON(w, http.StatusOK, s.sender.Downloads())
}

func (s *Server) handleFileTransferDownload(w http.ResponseWriter, r *http.Request) {
	if s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "file transfer is not configured")
		return
	}
	filename := pathValue(r, "filename")
	f, _, err := s.sender.OpenDownload(filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	http.ServeContent(w, r, filename, time.Time{}, f)
}
