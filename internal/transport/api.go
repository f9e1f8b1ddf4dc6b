// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	applog "wtsynth/internal/log"
	"wtsynth/internal/synth"
)

const maxBodyBytes = 4096

type paramValue struct {
	Name  string  `json:"name"`
	Value float32 `json:"value"`
}

type noteRequest struct {
	Velocity *float32 `json:"velocity,omitempty"`
}

type statusResponse struct {
	Voices int `json:"voices"`
}

// controlAPI exposes the Controller over HTTP:
//
//	GET  /api/status
//	GET  /api/params
//	GET  /api/params/{name}
//	PUT  /api/params/{name}   {"value": 0.5}
//	POST /api/notes/{note}/on {"velocity": 0.8}
//	POST /api/notes/{note}/off
//	POST /api/notes/off
type controlAPI struct {
	control Controller
}

func (a *controlAPI) mount(r chi.Router) {
	r.Get("/status", a.status)
	r.Route("/params", func(r chi.Router) {
		r.Get("/", a.listParams)
		r.Get("/{name}", a.getParam)
		r.Put("/{name}", a.putParam)
	})
	r.Route("/notes", func(r chi.Router) {
		r.Post("/off", a.allNotesOff)
		r.Post("/{note}/on", a.noteOn)
		r.Post("/{note}/off", a.noteOff)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Warnf("API: Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// decodeBody decodes an optional JSON body into v. An empty body is not an
// error.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (a *controlAPI) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Voices: a.control.ActiveVoices()})
}

func (a *controlAPI) listParams(w http.ResponseWriter, r *http.Request) {
	params := a.control.Params()
	out := make([]paramValue, 0, len(params))
	for i, v := range params {
		out = append(out, paramValue{Name: synth.ParamID(i).String(), Value: v})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *controlAPI) lookupParam(w http.ResponseWriter, r *http.Request) (synth.ParamID, bool) {
	id, err := synth.ParseParamID(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return 0, false
	}
	return id, true
}

func (a *controlAPI) getParam(w http.ResponseWriter, r *http.Request) {
	id, ok := a.lookupParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, paramValue{Name: id.String(), Value: a.control.GetParam(id)})
}

func (a *controlAPI) putParam(w http.ResponseWriter, r *http.Request) {
	id, ok := a.lookupParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Value *float64 `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	if body.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	value := float32(*body.Value)
	if math.IsInf(float64(value), 0) {
		writeError(w, http.StatusBadRequest, "value %g is out of range", *body.Value)
		return
	}

	a.control.SetParam(id, value)
	applog.Debugf("API: Set %s = %f", id, value)
	writeJSON(w, http.StatusOK, paramValue{Name: id.String(), Value: a.control.GetParam(id)})
}

func parseNote(w http.ResponseWriter, r *http.Request) (int, bool) {
	note, err := strconv.Atoi(chi.URLParam(r, "note"))
	if err != nil || note < 0 || note > 127 {
		writeError(w, http.StatusBadRequest, "note must be an integer between 0 and 127")
		return 0, false
	}
	return note, true
}

func (a *controlAPI) noteOn(w http.ResponseWriter, r *http.Request) {
	note, ok := parseNote(w, r)
	if !ok {
		return
	}

	var body noteRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	velocity := float32(1)
	if body.Velocity != nil {
		velocity = *body.Velocity
	}
	if velocity < 0 || velocity > 1 {
		writeError(w, http.StatusBadRequest, "velocity must be between 0 and 1")
		return
	}

	a.control.NoteOn(note, velocity)
	w.WriteHeader(http.StatusNoContent)
}

func (a *controlAPI) noteOff(w http.ResponseWriter, r *http.Request) {
	note, ok := parseNote(w, r)
	if !ok {
		return
	}
	a.control.NoteOff(note)
	w.WriteHeader(http.StatusNoContent)
}

func (a *controlAPI) allNotesOff(w http.ResponseWriter, r *http.Request) {
	a.control.AllNotesOff()
	w.WriteHeader(http.StatusNoContent)
}
