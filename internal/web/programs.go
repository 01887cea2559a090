package web

import (
	"io"
	"net/http"

	"github.com/solatis/microproto/internal/device"
)

func (s *Server) listPrograms(w http.ResponseWriter, r *http.Request, _ Params) {
	programs, err := s.ctrl.Programs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if programs == nil {
		programs = []device.ProgramInfo{}
	}
	writeJSON(w, http.StatusOK, programs)
}

func (s *Server) getProgram(w http.ResponseWriter, r *http.Request, p Params) {
	body, err := s.ctrl.ReadProgram(r.Context(), p.Get("name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) uploadProgram(w http.ResponseWriter, r *http.Request, p Params) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	info, err := s.ctrl.UploadProgram(r.Context(), p.Get("name"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info().Str("program", info.Name).Uint32("version", info.Version).Msg("program stored")
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) deleteProgram(w http.ResponseWriter, r *http.Request, p Params) {
	if err := s.ctrl.DeleteProgram(r.Context(), p.Get("name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectProgram(w http.ResponseWriter, r *http.Request, p Params) {
	if err := s.ctrl.SelectProgram(r.Context(), p.Get("name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) show(w http.ResponseWriter, r *http.Request, _ Params) {
	cur, err := s.ctrl.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}
