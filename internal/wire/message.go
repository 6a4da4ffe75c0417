package wire

import (
	"encoding/json"
	"strings"
)

// Peer sources recognised by the hub.
const (
	SourceDiscoverer    = "discoverer"
	SourceScanner       = "scanner"
	SourceConverter     = "converter"
	SourceCLI           = "cli"
	SourceWebUI         = "webui"
	SourceCommandCenter = "command_center"
)

// Client commands carried in Message.Cmd.
const (
	CmdLaunch  = "launch"
	CmdExit    = "exit"
	CmdControl = "control"
	CmdMovies  = "movies"
	CmdTV      = "tv"
	CmdDevices = "devices"
	CmdQueue   = "queue"
	CmdEnqueue = "enqueue"
	CmdWorkers = "workers"
	CmdStatus  = "status"
)

// RequestJob is the converter's work request.
const RequestJob = "job"

// MessageOK is the success text every accepted request is answered with.
const MessageOK = "OK"

// MessageNoJob answers a work request made against an empty queue.
const MessageNoJob = "No Job"

// Message is one decoded envelope payload. Requests and replies share the
// shape; which fields are populated depends on Source and intent.
type Message struct {
	Source string `json:"source,omitempty"`

	// Requests.
	Request   string            `json:"request,omitempty"`
	Cmd       string            `json:"cmd,omitempty"`
	Addr      string            `json:"addr,omitempty"`
	File      string            `json:"file,omitempty"`
	Devices   []Device          `json:"devices,omitempty"`
	Movies    []json.RawMessage `json:"movies,omitempty"`
	TV        []json.RawMessage `json:"tv,omitempty"`
	Transcode []string          `json:"transcode,omitempty"`
	Progress  json.RawMessage   `json:"progress,omitempty"`
	Status    string            `json:"status,omitempty"`
	Complete  string            `json:"complete,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`

	// Replies.
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Job      *Job            `json:"job,omitempty"`
	NoJob    bool            `json:"no_job,omitempty"`
	Jobs     []Job           `json:"jobs,omitempty"`
	InFlight []Job           `json:"in_flight,omitempty"`
	Workers  []WorkerStatus  `json:"workers,omitempty"`
	Summary  *Summary        `json:"summary,omitempty"`
	Reply    json.RawMessage `json:"reply,omitempty"`
}

// Failed reports whether a reply describes a failure.
func (m *Message) Failed() bool {
	if m == nil {
		return true
	}
	return m.Error != "" || (m.Message != "" && m.Message != MessageOK && m.Message != MessageNoJob)
}

// Device is one cast device as reported by the discoverer. Attributes are
// opaque to the hub apart from the address used as the registry key.
type Device map[string]any

// Address returns the registry key for the device. Older discoverers report
// it under "ip".
func (d Device) Address() string {
	for _, key := range []string{"address", "addr", "ip"} {
		if v, ok := d[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Name returns the friendly device name when one was reported.
func (d Device) Name() string {
	if v, ok := d["name"].(string); ok {
		return v
	}
	return ""
}

// Job is one transcode request.
type Job struct {
	ID        string          `json:"id,omitempty"`
	InputFile string          `json:"input_file"`
	Status    string          `json:"status,omitempty"`
	Progress  json.RawMessage `json:"progress,omitempty"`
}

// WorkerStatus is a roster entry snapshot.
type WorkerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	PID      int    `json:"pid,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
	Restarts int    `json:"restarts,omitempty"`
}

// Summary reports sizes of the hub's in-memory state.
type Summary struct {
	Devices       int `json:"devices"`
	Movies        int `json:"movies"`
	TV            int `json:"tv"`
	PendingJobs   int `json:"pending_jobs"`
	InFlightJobs  int `json:"in_flight_jobs"`
	RelaySessions int `json:"relay_sessions"`
	Sessions      int `json:"sessions"`
}
