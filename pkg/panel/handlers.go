package panel

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/logsink"
	"github.com/ossuary-pi/ossuary/pkg/processfile"
	"github.com/ossuary-pi/ossuary/pkg/processstate"
)

const defaultLogLines = 50

type startupResponse struct {
	Command string `json:"command"`
}

type startupRequest struct {
	Command string `json:"command"`
}

type statusResponse struct {
	Hostname          string `json:"hostname"`
	SupervisorRunning bool   `json:"supervisor_running"`
	CommandRunning    bool   `json:"command_running"`
	CommandPID        int    `json:"command_pid,omitempty"`
	Command           string `json:"command"`
	Timestamp         string `json:"timestamp"`
}

type logsResponse struct {
	Lines []string `json:"lines"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleGetStartup(w http.ResponseWriter, r *http.Request) {
	config, err := s.options.Store.Load()
	if err != nil {
		s.logger.Errorf("Failed to load configuration: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load configuration"})
		return
	}
	writeJSON(w, http.StatusOK, startupResponse{Command: config.StartupCommand})
}

// handleSetStartup updates only the startup command, leaving environment and
// tuning fields intact. The write is atomic; the supervisor picks it up on
// its next poll.
func (s *Server) handleSetStartup(w http.ResponseWriter, r *http.Request) {
	var request startupRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	config, err := s.options.Store.Load()
	if err != nil {
		s.logger.Errorf("Failed to load configuration: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load configuration"})
		return
	}
	config.StartupCommand = strings.TrimSpace(request.Command)

	if err := s.options.Store.Save(config); err != nil {
		s.logger.Errorf("Failed to save configuration: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to save configuration"})
		return
	}
	s.logger.Infof("Startup command updated")
	writeJSON(w, http.StatusOK, startupResponse{Command: config.StartupCommand})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	response := statusResponse{
		Hostname:  hostname,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if config, err := s.options.Store.Load(); err == nil {
		response.Command = config.StartupCommand
	}
	if s.options.PIDFiles != nil {
		response.SupervisorRunning = s.pidFileAlive(processfile.SupervisorFile)
		if pid, err := s.options.PIDFiles.Read(processfile.CommandFile); err == nil {
			if running, err := processstate.IsProcessRunning(pid); err == nil && running {
				response.CommandRunning = true
				response.CommandPID = pid
			}
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) pidFileAlive(name string) bool {
	pid, err := s.options.PIDFiles.Read(name)
	if err != nil {
		return false
	}
	running, err := processstate.IsProcessRunning(pid)
	return err == nil && running
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lines must be a positive integer"})
			return
		}
		lines = parsed
	}

	path := s.options.LogPath
	if path == "" {
		path = logsink.DefaultPath
	}
	tail, err := logsink.TailFile(path, lines)
	if err != nil {
		s.logger.Errorf("Failed to read log tail: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read logs"})
		return
	}
	if tail == nil {
		tail = []string{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Lines: tail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
